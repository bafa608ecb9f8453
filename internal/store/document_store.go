package store

import "context"

// Document is a durable artifact created alongside an agent response.
type Document struct {
	ID                  string     `json:"id"`
	RoomID              string     `json:"roomId"`
	Title               string     `json:"title"`
	Content             string     `json:"content"`
	CreatedAt           int64      `json:"createdAt"`
	CreatedByMemberID   string     `json:"createdByMemberId"`
	CreatedByMemberType MemberType `json:"createdByMemberType"`
}

type DocumentStore interface {
	CreateDocument(ctx context.Context, d *Document) error
	ListDocumentsForRoom(ctx context.Context, roomID string) ([]Document, error)
	DeleteDocument(ctx context.Context, id string) (*Document, error)
}
