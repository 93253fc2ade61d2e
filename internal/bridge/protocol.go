// Package bridge connects browser editors to correction engines over a
// websocket. Each connection gets its own [correction.Engine] running against
// a server-side mirror of the client's document; engine edits are forwarded
// to the client as replace, mark and unmark messages.
//
// Wire format, one JSON object per text frame:
//
//	client → server  {"type":"changed","text":"..."}
//	                 {"type":"enable","enabled":true}
//	server → client  {"type":"hello","session":"...","enabled":true}
//	                 {"type":"replace","from":4,"to":9,"text":"...","old":"..."}
//	                 {"type":"mark","from":4,"to":8,"tag":"green"}
//	                 {"type":"unmark","from":4,"to":8,"tag":"green"}
//	                 {"type":"state","enabled":false}
//	                 {"type":"error","message":"..."}
//
// Offsets are character (rune) offsets into the plain text. A client should
// drop a replace whose old text no longer matches its document.
package bridge

import "github.com/MrWong99/proofline/pkg/editor"

// Client message types.
const (
	TypeChanged = "changed"
	TypeEnable  = "enable"
)

// Server message types.
const (
	TypeHello   = "hello"
	TypeReplace = "replace"
	TypeMark    = "mark"
	TypeUnmark  = "unmark"
	TypeState   = "state"
	TypeError   = "error"
)

// ClientMessage is a frame sent by the editor.
type ClientMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// ServerMessage is a frame sent to the editor.
type ServerMessage struct {
	Type    string     `json:"type"`
	Session string     `json:"session,omitempty"`
	From    int        `json:"from"`
	To      int        `json:"to"`
	Text    string     `json:"text,omitempty"`
	Old     string     `json:"old,omitempty"`
	Tag     editor.Tag `json:"tag,omitempty"`
	Enabled *bool      `json:"enabled,omitempty"`
	Message string     `json:"message,omitempty"`
}
