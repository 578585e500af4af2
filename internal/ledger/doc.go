// Package ledger tracks business referrals passed between members.
//
// A referral is created open, the recipient accepts or declines it, and an
// accepted referral eventually closes won or lost. The service enforces
// those lifecycle edges and rejects anything else.
package ledger
