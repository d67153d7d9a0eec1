package cache

import (
	"fmt"
	"time"
)

const (
	UserKeyPrefix     = "user:%d"
	BookKeyPrefix     = "book:%d"
	WSTicketPrefix    = "ws_ticket:%s"
	TokenBlacklistKey = "blacklist:%s"
)

const (
	UserTTL     = 5 * time.Minute
	BookTTL     = 10 * time.Minute
	WSTicketTTL = 30 * time.Second
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func BookKey(bookID uint) string {
	return fmt.Sprintf(BookKeyPrefix, bookID)
}

func WSTicketKey(ticket string) string {
	return fmt.Sprintf(WSTicketPrefix, ticket)
}

func BlacklistKey(jti string) string {
	return fmt.Sprintf(TokenBlacklistKey, jti)
}
