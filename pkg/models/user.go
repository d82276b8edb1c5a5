package models

import "slices"

// ChatStatus is the status recorded on a chat-index entry.
type ChatStatus string

const ChatStatusActive ChatStatus = "Active"

// UserInfo is the profile of an authenticated identity.
type UserInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ChatSummary is a per-user chat-index entry.
type ChatSummary struct {
	ChatID     string     `json:"chatId"`
	IsPinned   bool       `json:"isPinned"`
	ChatStatus ChatStatus `json:"chatStatus"`
}

// User is the state held by a user entity: profile plus chat index.
type User struct {
	User  UserInfo      `json:"user"`
	Chats []ChatSummary `json:"chats"`
}

// FindChat returns the index of the chat-index entry for chatID, or -1.
func (u *User) FindChat(chatID string) int {
	return slices.IndexFunc(u.Chats, func(s ChatSummary) bool { return s.ChatID == chatID })
}

// AddChat appends an unpinned, active entry for chatID unless one exists.
// Reports whether the index changed.
func (u *User) AddChat(chatID string) bool {
	if u.FindChat(chatID) >= 0 {
		return false
	}
	u.Chats = append(u.Chats, ChatSummary{ChatID: chatID, ChatStatus: ChatStatusActive})
	return true
}

// RemoveChat drops every entry for chatID. Reports whether the index changed.
func (u *User) RemoveChat(chatID string) bool {
	before := len(u.Chats)
	u.Chats = slices.DeleteFunc(u.Chats, func(s ChatSummary) bool { return s.ChatID == chatID })
	return len(u.Chats) != before
}

// IsPinned reports whether chatID is pinned in this user's index.
func (u *User) IsPinned(chatID string) bool {
	i := u.FindChat(chatID)
	return i >= 0 && u.Chats[i].IsPinned
}
