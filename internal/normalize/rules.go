// Package normalize は検証レコードの形状をstrictデコーダが期待する形に修復する。
// 修復方針は(コンテナ, バリアントタグ)をキーとした宣言的なルール表で定義し、
// ツリー走査のコードとは独立して検証・拡張できるようにしている。
package normalize

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Action はルールが行うフィールド単位の編集。
type Action string

const (
	// ActionRemove はフィールドが存在すれば削除する。
	ActionRemove Action = "remove"
	// ActionInsertDefault はフィールドが存在しなければデフォルト値で挿入する。
	ActionInsertDefault Action = "insert_default"
)

// コンテナ名
const (
	ContainerEmailAddresses     = "email_addresses"
	ContainerSAMLAccounts       = "saml_accounts"
	ContainerEnterpriseAccounts = "enterprise_accounts"
)

// バリアントタグ
const (
	TagSAML = "verification_saml"
	// TagAny は文字列のタグを持つすべての検証に一致する。
	// 同じコンテナ・フィールドに完全一致のルールがあればそちらを優先する。
	TagAny = "*"
)

// FieldRedirectURL はSAML/OAuth系の検証にのみ存在する外部リダイレクトURL。
const FieldRedirectURL = "external_verification_redirect_url"

// FieldCreateOrganizationsLimit はペイロードには含まれるがユーザーモデルに存在しないフィールド。
const FieldCreateOrganizationsLimit = "create_organizations_limit"

// Rule は1件の修復ルール。
type Rule struct {
	Container string `yaml:"container"`
	Tag       string `yaml:"tag"`
	Field     string `yaml:"field"`
	Action    Action `yaml:"action"`
	// Default はActionInsertDefaultで挿入する値。未指定の場合はnull。
	Default any `yaml:"default"`
}

// RuleSet はトップレベルの削除対象フィールドと修復ルールの組。
type RuleSet struct {
	Denylist []string `yaml:"denylist"`
	Rules    []Rule   `yaml:"rules"`
}

// DefaultRuleSet は組み込みの修復ルールを返す。
//
//   - email_addresses内のSAML検証: external_verification_redirect_urlを削除
//   - saml_accounts/enterprise_accounts内の検証: タグを問わず欠落時にnullを挿入
func DefaultRuleSet() RuleSet {
	return RuleSet{
		Denylist: []string{FieldCreateOrganizationsLimit},
		Rules: []Rule{
			{Container: ContainerEmailAddresses, Tag: TagSAML, Field: FieldRedirectURL, Action: ActionRemove},
			{Container: ContainerSAMLAccounts, Tag: TagAny, Field: FieldRedirectURL, Action: ActionInsertDefault},
			{Container: ContainerEnterpriseAccounts, Tag: TagAny, Field: FieldRedirectURL, Action: ActionInsertDefault},
		},
	}
}

// LoadRuleSet はYAMLからルールセットを読み込み、検証する。
func LoadRuleSet(r io.Reader) (RuleSet, error) {
	var rs RuleSet
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&rs); err != nil {
		if err == io.EOF {
			return RuleSet{}, fmt.Errorf("rule set is empty")
		}
		return RuleSet{}, fmt.Errorf("failed to decode rule set: %w", err)
	}
	if err := rs.Validate(); err != nil {
		return RuleSet{}, err
	}
	return rs, nil
}

// LoadRuleFile はファイルからルールセットを読み込む。
func LoadRuleFile(path string) (RuleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("failed to open rule file: %w", err)
	}
	defer f.Close()

	rs, err := LoadRuleSet(f)
	if err != nil {
		return RuleSet{}, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// Validate はルールセットの整合性を検証する。
func (rs RuleSet) Validate() error {
	for i, name := range rs.Denylist {
		if name == "" {
			return fmt.Errorf("denylist[%d]: empty field name", i)
		}
	}
	for i, r := range rs.Rules {
		switch {
		case r.Container == "":
			return fmt.Errorf("rules[%d]: container is required", i)
		case r.Tag == "":
			return fmt.Errorf("rules[%d]: tag is required", i)
		case r.Field == "":
			return fmt.Errorf("rules[%d]: field is required", i)
		}
		switch r.Action {
		case ActionRemove:
		case ActionInsertDefault:
			if _, err := r.defaultJSON(); err != nil {
				return fmt.Errorf("rules[%d]: invalid default: %w", i, err)
			}
		default:
			return fmt.Errorf("rules[%d]: unknown action %q", i, r.Action)
		}
	}
	return nil
}

// Containers はルールが参照するコンテナ名を初出順に返す。
func (rs RuleSet) Containers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rs.Rules {
		if !seen[r.Container] {
			seen[r.Container] = true
			out = append(out, r.Container)
		}
	}
	return out
}

// defaultJSON は挿入値をJSONとしてエンコードする。
func (r Rule) defaultJSON() (json.RawMessage, error) {
	if r.Default == nil {
		return json.RawMessage("null"), nil
	}
	b, err := json.Marshal(r.Default)
	if err != nil {
		return nil, err
	}
	return b, nil
}
