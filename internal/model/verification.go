package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Verification は識別子や外部アカウントの検証状態を表す。
// objectフィールドのタグでバリアントが決まり、バリアントごとに許可されるキーが異なる。
type Verification struct {
	Object                          string          `json:"object"`
	Status                          string          `json:"status"`
	Strategy                        string          `json:"strategy"`
	Attempts                        *int64          `json:"attempts"`
	ExpireAt                        *int64          `json:"expire_at"`
	VerifiedAtClient                *string         `json:"verified_at_client"`
	Error                           json.RawMessage `json:"error"`
	ExternalVerificationRedirectURL *string         `json:"external_verification_redirect_url"`
}

// 検証バリアントのタグ
const (
	VerificationEmailCode = "verification_email_code"
	VerificationEmailLink = "verification_email_link"
	VerificationAdmin     = "verification_admin"
	VerificationFromOAuth = "verification_from_oauth"
	VerificationSAML      = "verification_saml"
	VerificationOAuth     = "verification_oauth"
	VerificationTicket    = "verification_ticket"
)

var (
	baseVerificationKeys = []string{"object", "status", "strategy", "attempts", "expire_at"}
	baseRequired         = []string{"object", "status", "strategy"}
)

func keys(extra ...string) []string {
	return append(append([]string(nil), baseVerificationKeys...), extra...)
}

// emailVerificationVariants はメールアドレスの検証バリアント。
// SAMLを含め、どのバリアントもexternal_verification_redirect_urlを持たない。
var emailVerificationVariants = map[string]shape{
	VerificationEmailCode: shapeFromKeys(keys(), baseRequired...),
	VerificationEmailLink: shapeFromKeys(keys("verified_at_client"), baseRequired...),
	VerificationAdmin:     shapeFromKeys([]string{"object", "status", "strategy"}, baseRequired...),
	VerificationFromOAuth: shapeFromKeys(keys("error"), baseRequired...),
	VerificationSAML:      shapeFromKeys(keys("error"), baseRequired...),
}

// accountVerificationVariants はSAML/エンタープライズアカウントの検証バリアント。
// SAMLとOAuthはexternal_verification_redirect_urlを必ず持ち（値はnullでもよい）、
// チケットは持っていてもよい。
var accountVerificationVariants = map[string]shape{
	VerificationSAML: shapeFromKeys(
		keys("error", "external_verification_redirect_url"),
		append(append([]string(nil), baseRequired...), "external_verification_redirect_url")...,
	),
	VerificationOAuth: shapeFromKeys(
		keys("error", "external_verification_redirect_url"),
		append(append([]string(nil), baseRequired...), "external_verification_redirect_url")...,
	),
	VerificationTicket: shapeFromKeys(keys("external_verification_redirect_url"), baseRequired...),
}

// decodeVerification はタグに応じたバリアントの形状を検証してからデコードする。
// エラーのPathは "verification" からの相対位置になる。
func decodeVerification(raw json.RawMessage, variants map[string]shape) (*Verification, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	res := gjson.ParseBytes(raw)
	if res.Type == gjson.Null {
		return nil, nil
	}
	if !res.IsObject() {
		return nil, &DecodeError{Kind: KindTypeMismatch, Path: "verification", Detail: "expected object, got " + describe(res)}
	}

	tag := res.Get("object")
	if !tag.Exists() {
		return nil, &DecodeError{Kind: KindMissingField, Path: "verification.object", Detail: "variant tag is absent"}
	}
	if tag.Type != gjson.String {
		return nil, &DecodeError{Kind: KindTypeMismatch, Path: "verification.object", Detail: "expected string, got " + describe(tag)}
	}

	s, ok := variants[tag.Str]
	if !ok {
		return nil, &DecodeError{
			Kind:   KindUnknownVariant,
			Path:   "verification.object",
			Detail: fmt.Sprintf("unknown variant %q, expected one of %s", tag.Str, variantNames(variants)),
		}
	}

	if err := s.check(raw); err != nil {
		return nil, withPath(err, "verification")
	}

	var v Verification
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, withPath(asDecodeError(err), "verification")
	}
	return &v, nil
}

func variantNames(variants map[string]shape) string {
	names := make([]string, 0, len(variants))
	for name := range variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
