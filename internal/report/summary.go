package report

import (
	"strconv"

	"github.com/hitoshi/verifix/internal/model"
)

// Absent は値が存在しないことを示すマーカー。空文字列と区別するために使う。
const Absent = "<absent>"

// Summary はデコード済みユーザーから取り出す要約項目。
// nilのポインタは「値が存在しない」ことを表す。
type Summary struct {
	ID                 *string `json:"id"`
	FirstName          *string `json:"first_name"`
	LastName           *string `json:"last_name"`
	Email              *string `json:"email"`
	EmailAddresses     int     `json:"email_addresses_count"`
	SAMLAccounts       int     `json:"saml_accounts_count"`
	EnterpriseAccounts int     `json:"enterprise_accounts_count"`
	CreatedAt          *int64  `json:"created_at"`
	LastSignInAt       *int64  `json:"last_sign_in_at"`
}

// Summarize はユーザーから要約を作る。
// Emailはemail_addressesの先頭要素のアドレス。
func Summarize(u *model.User) Summary {
	s := Summary{
		ID:                 u.ID,
		FirstName:          u.FirstName,
		LastName:           u.LastName,
		EmailAddresses:     len(u.EmailAddresses),
		SAMLAccounts:       len(u.SAMLAccounts),
		EnterpriseAccounts: len(u.EnterpriseAccounts),
		CreatedAt:          u.CreatedAt,
		LastSignInAt:       u.LastSignInAt,
	}
	if len(u.EmailAddresses) > 0 {
		email := u.EmailAddresses[0].EmailAddress
		s.Email = &email
	}
	return s
}

// Line はラベル付きの1行。
type Line struct {
	Label string
	Value string
}

// Lines は要約を固定順のラベル付き行に変換する。
func (s Summary) Lines() []Line {
	return []Line{
		{"ID", quoted(s.ID)},
		{"First Name", quoted(s.FirstName)},
		{"Last Name", quoted(s.LastName)},
		{"Email", quoted(s.Email)},
		{"Email Addresses Count", strconv.Itoa(s.EmailAddresses)},
		{"SAML Accounts Count", strconv.Itoa(s.SAMLAccounts)},
		{"Enterprise Accounts Count", strconv.Itoa(s.EnterpriseAccounts)},
		{"Created At", timestamp(s.CreatedAt)},
		{"Last Sign In", timestamp(s.LastSignInAt)},
	}
}

func quoted(v *string) string {
	if v == nil {
		return Absent
	}
	return strconv.Quote(*v)
}

func timestamp(v *int64) string {
	if v == nil {
		return Absent
	}
	return strconv.FormatInt(*v, 10)
}
