package cache

import (
	"encoding/binary"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Kind discriminates the logical request a Key belongs to.
type Kind string

const (
	KindUser              Kind = "user"
	KindRewards           Kind = "rewards"
	KindLeaderboard       Kind = "leaderboard"
	KindWeeklyLeaderboard Kind = "weekly_leaderboard"
	KindRawLeaderboard    Kind = "raw_leaderboard"
)

// Optional is a uint64 that may be absent. The zero value is absent.
type Optional struct {
	Value uint64
	Valid bool
}

// Some returns a present Optional holding v.
func Some(v uint64) Optional { return Optional{Value: v, Valid: true} }

// None returns an absent Optional.
func None() Optional { return Optional{} }

func (o Optional) String() string {
	if !o.Valid {
		return "none"
	}
	return strconv.FormatUint(o.Value, 10)
}

// Key identifies one cacheable request. Keys are compared component-wise;
// None() and Some(50) are different keys even if the API treats them alike,
// so callers must build the same shape for the same logical request.
//
// Build Optionals with Some and None only: an Optional with Valid unset but
// a non-zero Value is not equal to None().
type Key struct {
	Kind  Kind
	Scope uint64 // guild
	ID    uint64 // member id or page number
	Limit Optional
}

// NewKey returns the key for a single item of kind within scope.
func NewKey(kind Kind, scope, id uint64) Key {
	return Key{Kind: kind, Scope: scope, ID: id}
}

func (k Key) String() string {
	b := make([]byte, 0, len(k.Kind)+48)
	b = append(b, k.Kind...)
	b = append(b, ':')
	b = strconv.AppendUint(b, k.Scope, 10)
	b = append(b, ':')
	b = strconv.AppendUint(b, k.ID, 10)
	b = append(b, ':')
	b = append(b, k.Limit.String()...)
	return string(b)
}

// hash returns a stable 64-bit hash of every key component.
func (k Key) hash() uint64 {
	var buf [25]byte
	binary.LittleEndian.PutUint64(buf[0:], k.Scope)
	binary.LittleEndian.PutUint64(buf[8:], k.ID)
	binary.LittleEndian.PutUint64(buf[16:], k.Limit.Value)
	if k.Limit.Valid {
		buf[24] = 1
	}
	d := xxhash.New()
	_, _ = d.WriteString(string(k.Kind))
	_, _ = d.Write(buf[:])
	return d.Sum64()
}
