package mqtt

import "strings"

// Topics builds the bridge's topic names under one prefix:
//
//	<prefix>/input/<object>      prop -> game, activation
//	<prefix>/hover/<object>      prop -> game, proximity on/off
//	<prefix>/result/<object>     game -> prop, activation outcome
//	<prefix>/display/<kind>      game -> displays
//	<prefix>/heartbeat/<prop>    prop -> game, liveness
type Topics struct {
	Prefix string
}

func (t Topics) join(parts ...string) string {
	return strings.TrimSuffix(t.Prefix, "/") + "/" + strings.Join(parts, "/")
}

func (t Topics) InputFilter() string     { return t.join("input", "+") }
func (t Topics) HoverFilter() string     { return t.join("hover", "+") }
func (t Topics) HeartbeatFilter() string { return t.join("heartbeat", "+") }

func (t Topics) Input(object string) string  { return t.join("input", object) }
func (t Topics) Hover(object string) string  { return t.join("hover", object) }
func (t Topics) Result(object string) string { return t.join("result", object) }
func (t Topics) Display(kind string) string  { return t.join("display", kind) }
func (t Topics) Heartbeat(prop string) string {
	return t.join("heartbeat", prop)
}

// lastSegment returns the final topic level, the object or prop name.
func lastSegment(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
