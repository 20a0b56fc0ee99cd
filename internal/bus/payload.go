package bus

import "fmt"

// Notice is the structured form of a showMessage payload.
type Notice struct {
	Text     string `json:"text"`
	Severity string `json:"severity,omitempty"`
	Source   string `json:"source,omitempty"`
}

// Text renders a showMessage payload, which is either a plain string or a Notice.
func Text(payload any) string {
	switch p := payload.(type) {
	case nil:
		return ""
	case string:
		return p
	case Notice:
		return p.Text
	case *Notice:
		if p == nil {
			return ""
		}
		return p.Text
	case fmt.Stringer:
		return p.String()
	}
	return fmt.Sprint(payload)
}
