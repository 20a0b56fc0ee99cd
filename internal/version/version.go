// Package version reports the build version of the HoloQuest server.
package version

// Version is overridden at build time:
//
//	go build -ldflags "-X github.com/AaronLay10/holoquest/internal/version.Version=x.y.z"
var Version = "0.4.0-dev"
