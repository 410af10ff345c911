package viewer

// SizeMessage is sent as JSON when a viewer connects and whenever the
// canvas size changes.
type SizeMessage struct {
	Type        string `json:"type"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ClientCount int    `json:"clientCount"`
}

type errorMessage struct {
	Error string `json:"error"`
}
