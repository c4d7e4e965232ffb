package amari

import "unsafe"

// User is a guild member's Amari profile.
type User struct {
	ID        uint64  `json:"id,string"`
	Username  string  `json:"username"`
	Exp       uint32  `json:"exp"`
	Level     *uint32 `json:"level,omitempty"`
	WeeklyExp *uint32 `json:"weeklyExp,omitempty"`
}

// CacheSize approximates the memory held by u for the cache budget.
func (u User) CacheSize() int64 {
	n := int64(unsafe.Sizeof(u)) + int64(len(u.Username))
	if u.Level != nil {
		n += 4
	}
	if u.WeeklyExp != nil {
		n += 4
	}
	return n
}

// Users is the response of a batch member lookup.
type Users struct {
	GuildID        uint64 `json:"guild,string"`
	Members        []User `json:"members"`
	TotalMembers   int    `json:"total_members"`
	QueriedMembers int    `json:"queried_members"`
}

// User returns the member with the given id.
func (u Users) User(id uint64) (User, bool) {
	for _, m := range u.Members {
		if m.ID == id {
			return m, true
		}
	}
	return User{}, false
}

// Len returns the number of members found.
func (u Users) Len() int {
	return u.TotalMembers
}

// Leaderboard is one page of a guild leaderboard.
type Leaderboard struct {
	Count      uint64 `json:"count"`
	Users      []User `json:"data"`
	TotalCount uint64 `json:"total_count"`
}

// CacheSize approximates the memory held by l for the cache budget.
func (l Leaderboard) CacheSize() int64 {
	n := int64(unsafe.Sizeof(l))
	for _, u := range l.Users {
		n += u.CacheSize()
	}
	return n
}

// RewardRole is a role granted at a level.
type RewardRole struct {
	RoleID uint64 `json:"roleID,string"`
	Level  uint64 `json:"level"`
}

// Rewards is one page of a guild's reward roles.
type Rewards struct {
	Count uint64       `json:"count"`
	Roles []RewardRole `json:"data"`
}

// CacheSize approximates the memory held by r for the cache budget.
func (r Rewards) CacheSize() int64 {
	return int64(unsafe.Sizeof(r)) + int64(len(r.Roles))*int64(unsafe.Sizeof(RewardRole{}))
}
