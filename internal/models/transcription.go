// Package models defines the persisted record and the event payloads exchanged
// with the storage notification and outcome topics.
package models

import "time"

// Transcription is one processed audio file.
type Transcription struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	Name      string    `gorm:"size:1024;index" json:"name"`

	// Transcript holds each recognized utterance followed by a newline.
	Transcript string `gorm:"type:text" json:"transcript"`

	// KeyPhrases is the extracted phrases joined without a separator.
	KeyPhrases    string   `gorm:"type:text" json:"keyPhrases"`
	KeyPhraseList []string `gorm:"type:text;serializer:json" json:"keyPhraseList"`

	Sentiment   string  `gorm:"size:16" json:"sentiment"`
	ProcessTime float64 `json:"processTime"`
}

// TableName pins the table name independent of GORM's pluralization.
func (Transcription) TableName() string {
	return "transcriptions"
}
