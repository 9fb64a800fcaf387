package models

// Event is one inbound chat event. It is one of TextMessage, FileUpload or ButtonPress.
type Event interface {
	Origin() Origin
	isEvent()
}

// Origin identifies who sent an event and where
type Origin struct {
	UserID  int64
	ChatID  int64
	Private bool
}

// TextMessage is a plain text message
type TextMessage struct {
	From Origin
	Text string
}

// FileUpload is a document or photo with an optional caption
type FileUpload struct {
	From     Origin
	Data     []byte
	Filename string
	MimeType string
	Caption  string
}

// ButtonPress is an inline keyboard tap carrying an opaque payload
type ButtonPress struct {
	From    Origin
	Payload string
}

func (e TextMessage) Origin() Origin { return e.From }
func (e FileUpload) Origin() Origin  { return e.From }
func (e ButtonPress) Origin() Origin { return e.From }

func (TextMessage) isEvent() {}
func (FileUpload) isEvent()  {}
func (ButtonPress) isEvent() {}

// Button is a single inline keyboard button
type Button struct {
	Text string
	Data string
}

// Reply is the single response produced for an inbound event
type Reply struct {
	Text     string
	Markdown bool
	Keyboard [][]Button
}
