// Package access holds the admin allow-list shared by the gate and the
// admin API.
package access

import "strings"

type AdminList struct {
	emails map[string]struct{}
}

func NewAdminList(emails []string) *AdminList {
	list := &AdminList{emails: make(map[string]struct{}, len(emails))}
	for _, email := range emails {
		email = normalize(email)
		if email == "" {
			continue
		}
		list.emails[email] = struct{}{}
	}
	return list
}

// IsAdmin reports whether email is on the allow-list. An empty email is
// never an admin.
func (l *AdminList) IsAdmin(email string) bool {
	if l == nil {
		return false
	}
	email = normalize(email)
	if email == "" {
		return false
	}
	_, ok := l.emails[email]
	return ok
}

func (l *AdminList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.emails)
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
