package models

import "time"

// Message is one entry in the conversation attached to a swap request.
type Message struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	SwapRequestID uint      `gorm:"not null;index:idx_messages_request_created,priority:1" json:"swapRequestId"`
	SenderID      uint      `gorm:"not null;index" json:"senderId"`
	ReceiverID    uint      `gorm:"not null;index:idx_messages_receiver_read,priority:1" json:"receiverId"`
	Content       string    `gorm:"type:text;not null" json:"content"`
	Read          bool      `gorm:"not null;default:false;index:idx_messages_receiver_read,priority:2" json:"read"`
	Sender        *User     `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	CreatedAt     time.Time `gorm:"index:idx_messages_request_created,priority:2" json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Conversation is one row of a user's inbox: a swap request together with
// its latest message and how much of it the user has not yet read.
type Conversation struct {
	SwapRequest *SwapRequest `json:"swapRequest"`
	LastMessage *Message     `json:"lastMessage,omitempty"`
	UnreadCount int64        `json:"unreadCount"`
	OtherUser   *UserSummary `json:"otherUser,omitempty"`
}
