package models

// Class is a placement target; managed elsewhere and read-only here.
type Class struct {
	ID    string `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Level string `db:"level" json:"level"`
}

// Stream subdivides a class.
type Stream struct {
	ID      string `db:"id" json:"id"`
	ClassID string `db:"class_id" json:"class_id"`
	Name    string `db:"name" json:"name"`
}

// ClassWithStreams groups streams under their class for placement pickers.
type ClassWithStreams struct {
	Class
	Streams []Stream `json:"streams"`
}
