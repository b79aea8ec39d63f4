// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// User は上流の認証基盤から受け取るユーザーレコードを表す。
// デコードはstrictで、未知のキー・必須キーの欠落・型の不一致をすべて拒否する。
type User struct {
	ID                            *string             `json:"id"`
	Object                        string              `json:"object"`
	ExternalID                    *string             `json:"external_id"`
	Username                      *string             `json:"username"`
	FirstName                     *string             `json:"first_name"`
	LastName                      *string             `json:"last_name"`
	ImageURL                      *string             `json:"image_url"`
	ProfileImageURL               *string             `json:"profile_image_url"`
	HasImage                      *bool               `json:"has_image"`
	PrimaryEmailAddressID         *string             `json:"primary_email_address_id"`
	PrimaryPhoneNumberID          *string             `json:"primary_phone_number_id"`
	PrimaryWeb3WalletID           *string             `json:"primary_web3_wallet_id"`
	PasswordEnabled               *bool               `json:"password_enabled"`
	TwoFactorEnabled              *bool               `json:"two_factor_enabled"`
	TOTPEnabled                   *bool               `json:"totp_enabled"`
	BackupCodeEnabled             *bool               `json:"backup_code_enabled"`
	EmailAddresses                []EmailAddress      `json:"email_addresses"`
	PhoneNumbers                  []json.RawMessage   `json:"phone_numbers"`
	Web3Wallets                   []json.RawMessage   `json:"web3_wallets"`
	Passkeys                      []json.RawMessage   `json:"passkeys"`
	ExternalAccounts              []json.RawMessage   `json:"external_accounts"`
	SAMLAccounts                  []SAMLAccount       `json:"saml_accounts"`
	EnterpriseAccounts            []EnterpriseAccount `json:"enterprise_accounts"`
	PublicMetadata                map[string]any      `json:"public_metadata"`
	PrivateMetadata               map[string]any      `json:"private_metadata"`
	UnsafeMetadata                map[string]any      `json:"unsafe_metadata"`
	LastSignInAt                  *int64              `json:"last_sign_in_at"`
	LastActiveAt                  *int64              `json:"last_active_at"`
	LegalAcceptedAt               *int64              `json:"legal_accepted_at"`
	Banned                        *bool               `json:"banned"`
	Locked                        *bool               `json:"locked"`
	LockoutExpiresInSeconds       *int64              `json:"lockout_expires_in_seconds"`
	VerificationAttemptsRemaining *int64              `json:"verification_attempts_remaining"`
	DeleteSelfEnabled             *bool               `json:"delete_self_enabled"`
	CreateOrganizationEnabled     *bool               `json:"create_organization_enabled"`
	CreatedAt                     *int64              `json:"created_at"`
	UpdatedAt                     *int64              `json:"updated_at"`
}

// IdentificationLink はメールアドレスと外部アカウントの紐付け。
type IdentificationLink struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// EmailAddress はユーザーのメールアドレスと、その検証状態を表す。
type EmailAddress struct {
	ID                   *string              `json:"id"`
	Object               string               `json:"object"`
	EmailAddress         string               `json:"email_address"`
	Reserved             *bool                `json:"reserved"`
	Verification         *Verification        `json:"verification"`
	LinkedTo             []IdentificationLink `json:"linked_to"`
	MatchesSSOConnection *bool                `json:"matches_sso_connection"`
	CreatedAt            *int64               `json:"created_at"`
	UpdatedAt            *int64               `json:"updated_at"`
}

// SAMLAccount はSAML接続経由で紐付いた外部アカウント。
type SAMLAccount struct {
	ID             *string         `json:"id"`
	Object         string          `json:"object"`
	Provider       *string         `json:"provider"`
	Active         *bool           `json:"active"`
	EmailAddress   *string         `json:"email_address"`
	FirstName      *string         `json:"first_name"`
	LastName       *string         `json:"last_name"`
	ProviderUserID *string         `json:"provider_user_id"`
	PublicMetadata map[string]any  `json:"public_metadata"`
	Verification   *Verification   `json:"verification"`
	SAMLConnection json.RawMessage `json:"saml_connection"`
}

// EnterpriseAccount はエンタープライズ接続（SAML/OIDC）経由で紐付いた外部アカウント。
type EnterpriseAccount struct {
	ID                     *string         `json:"id"`
	Object                 string          `json:"object"`
	Protocol               *string         `json:"protocol"`
	Provider               *string         `json:"provider"`
	Active                 *bool           `json:"active"`
	EmailAddress           *string         `json:"email_address"`
	FirstName              *string         `json:"first_name"`
	LastName               *string         `json:"last_name"`
	ProviderUserID         *string         `json:"provider_user_id"`
	EnterpriseConnectionID *string         `json:"enterprise_connection_id"`
	PublicMetadata         map[string]any  `json:"public_metadata"`
	Verification           *Verification   `json:"verification"`
	EnterpriseConnection   json.RawMessage `json:"enterprise_connection"`
}

var (
	userShape              = shapeOf(User{}, "object")
	emailAddressShape      = shapeOf(EmailAddress{}, "object", "email_address")
	samlAccountShape       = shapeOf(SAMLAccount{}, "object")
	enterpriseAccountShape = shapeOf(EnterpriseAccount{}, "object")
)

// DecodeUser はJSONをstrictにUserへデコードする。
// ドキュメントがモデルに適合しない場合は*DecodeErrorを返す。
func DecodeUser(data []byte) (*User, error) {
	if root := gjson.ParseBytes(data); !root.IsObject() {
		return nil, &DecodeError{Kind: KindTypeMismatch, Detail: "expected object, got " + describe(root)}
	}

	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, asDecodeError(err)
	}
	return &u, nil
}

// UnmarshalJSON はトップレベルのキーを検証し、各コレクションをレコード単位でデコードする。
func (u *User) UnmarshalJSON(data []byte) error {
	if err := userShape.check(data); err != nil {
		return err
	}

	type plain User
	aux := struct {
		*plain
		EmailAddresses     json.RawMessage `json:"email_addresses"`
		SAMLAccounts       json.RawMessage `json:"saml_accounts"`
		EnterpriseAccounts json.RawMessage `json:"enterprise_accounts"`
	}{plain: (*plain)(u)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return asDecodeError(err)
	}

	var err error
	if u.EmailAddresses, err = decodeList[EmailAddress](aux.EmailAddresses, "email_addresses"); err != nil {
		return err
	}
	if u.SAMLAccounts, err = decodeList[SAMLAccount](aux.SAMLAccounts, "saml_accounts"); err != nil {
		return err
	}
	if u.EnterpriseAccounts, err = decodeList[EnterpriseAccount](aux.EnterpriseAccounts, "enterprise_accounts"); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSON はメールアドレス用の検証バリアントでverificationをデコードする。
func (e *EmailAddress) UnmarshalJSON(data []byte) error {
	if err := emailAddressShape.check(data); err != nil {
		return err
	}

	type plain EmailAddress
	aux := struct {
		*plain
		Verification json.RawMessage `json:"verification"`
	}{plain: (*plain)(e)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return asDecodeError(err)
	}

	v, err := decodeVerification(aux.Verification, emailVerificationVariants)
	if err != nil {
		return err
	}
	e.Verification = v
	return nil
}

// UnmarshalJSON はアカウント用の検証バリアントでverificationをデコードする。
func (a *SAMLAccount) UnmarshalJSON(data []byte) error {
	if err := samlAccountShape.check(data); err != nil {
		return err
	}

	type plain SAMLAccount
	aux := struct {
		*plain
		Verification json.RawMessage `json:"verification"`
	}{plain: (*plain)(a)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return asDecodeError(err)
	}

	v, err := decodeVerification(aux.Verification, accountVerificationVariants)
	if err != nil {
		return err
	}
	a.Verification = v
	return nil
}

// UnmarshalJSON はアカウント用の検証バリアントでverificationをデコードする。
func (a *EnterpriseAccount) UnmarshalJSON(data []byte) error {
	if err := enterpriseAccountShape.check(data); err != nil {
		return err
	}

	type plain EnterpriseAccount
	aux := struct {
		*plain
		Verification json.RawMessage `json:"verification"`
	}{plain: (*plain)(a)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return asDecodeError(err)
	}

	v, err := decodeVerification(aux.Verification, accountVerificationVariants)
	if err != nil {
		return err
	}
	a.Verification = v
	return nil
}
