package model

import "time"

// Verification represents a row in the `verifications` table. A row is
// created as soon as a user opens /verify with a token and is filled in
// when the OAuth callback for that token completes. Rows are never
// deleted by the service.
//
// Fields:
//
//	Token      opaque, caller-chosen key (at most 256 characters).
//	DiscordID  Discord user id, nil until the callback completes.
//	Username   display name at verification time.
//	DaysOld    account age in whole days at verification time.
//	Verified   whether the account met the minimum age.
//	IP         client address that started the flow, nil if unknown.
type Verification struct {
	Token     string    `db:"token"`
	DiscordID *int64    `db:"discord_id"`
	Username  *string   `db:"username"`
	DaysOld   *int64    `db:"days_old"`
	Verified  bool      `db:"verified"`
	IP        *string   `db:"ip"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// CoinBalance models the `coin_balances` table. A row is created at zero
// the first time a user earns a verification reward; the bot that spends
// coins reads it directly.
type CoinBalance struct {
	DiscordID int64     `db:"discord_id"`
	Balance   int64     `db:"balance"`
	UpdatedAt time.Time `db:"updated_at"`
}
