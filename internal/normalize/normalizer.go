package normalize

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/hitoshi/verifix/internal/document"
)

// fieldVerification は各レコードが持つ検証サブオブジェクトのキー。
const fieldVerification = "verification"

// fieldObject はバリアントタグのキー。
const fieldObject = "object"

// Repair は実際に適用された修復1件を表す。
type Repair struct {
	Container string `json:"container"`
	Index     int    `json:"index"`
	Tag       string `json:"tag"`
	Field     string `json:"field"`
	Action    Action `json:"action"`
	Pointer   string `json:"pointer"`
}

// Result は正規化1回分の結果。
type Result struct {
	// Removed は削除されたトップレベルのdenylistフィールド。
	Removed []string `json:"removed"`
	// Repairs は適用された修復。コンテナ内のレコード順に並ぶ。
	Repairs []Repair `json:"repairs"`
}

// Changed はドキュメントが書き換えられたかを返す。
func (r Result) Changed() bool {
	return len(r.Removed) > 0 || len(r.Repairs) > 0
}

type ruleKey struct {
	container string
	tag       string
}

type compiledRule struct {
	Rule
	value json.RawMessage
}

// Normalizer はルールセットに従ってドキュメントを修復する。
// 生成後は不変であり、複数のgoroutineから同時に使用できる。
type Normalizer struct {
	denylist   []string
	containers []string
	rules      map[ruleKey][]compiledRule
	logger     *slog.Logger
}

// New はルールセットを検証し、Normalizerを生成する。
func New(rs RuleSet, logger *slog.Logger) (*Normalizer, error) {
	if err := rs.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rule set: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	n := &Normalizer{
		denylist:   append([]string(nil), rs.Denylist...),
		containers: rs.Containers(),
		rules:      make(map[ruleKey][]compiledRule),
		logger:     logger,
	}
	for _, r := range rs.Rules {
		value, err := r.defaultJSON()
		if err != nil {
			return nil, fmt.Errorf("invalid default for %s/%s: %w", r.Container, r.Tag, err)
		}
		key := ruleKey{container: r.Container, tag: r.Tag}
		n.rules[key] = append(n.rules[key], compiledRule{Rule: r, value: value})
	}
	return n, nil
}

// Normalize はドキュメントをその場で修復し、適用内容を返す。
// フィールドの欠落や型の不一致は「修復対象なし」として扱い、エラーにはしない。
// 同じドキュメントに何度適用しても結果は変わらない。
func (n *Normalizer) Normalize(doc *document.Document) Result {
	root := doc.Root()
	if !root.IsObject() {
		return Result{}
	}

	var (
		ops    []document.Op
		result Result
	)

	for _, name := range n.denylist {
		if doc.Has(name) {
			ops = append(ops, document.Remove(document.Pointer(name)))
			result.Removed = append(result.Removed, name)
		}
	}

	for _, container := range n.containers {
		records := root.Get(document.Path(container))
		if !records.IsArray() {
			continue
		}
		for i, record := range records.Array() {
			recOps, repairs := n.repairRecord(container, i, record)
			ops = append(ops, recOps...)
			result.Repairs = append(result.Repairs, repairs...)
		}
	}

	if err := doc.Apply(ops); err != nil {
		n.logger.Warn("normalization patch could not be applied",
			slog.Int("operations", len(ops)),
			slog.String("error", err.Error()),
		)
		return Result{}
	}

	return result
}

// repairRecord は1レコードに対する修復操作を組み立てる。
func (n *Normalizer) repairRecord(container string, index int, record gjson.Result) ([]document.Op, []Repair) {
	verification := record.Get(fieldVerification)
	if !verification.IsObject() {
		return nil, nil
	}

	tag := verification.Get(fieldObject)
	if tag.Type != gjson.String {
		return nil, nil
	}

	rules := n.rulesFor(container, tag.Str)
	if len(rules) == 0 {
		return nil, nil
	}

	var (
		ops     []document.Op
		repairs []Repair
	)
	for _, r := range rules {
		present := verification.Get(document.Path(r.Field)).Exists()
		pointer := document.Pointer(container, strconv.Itoa(index), fieldVerification, r.Field)

		switch r.Action {
		case ActionRemove:
			if !present {
				continue
			}
			ops = append(ops, document.Remove(pointer))
		case ActionInsertDefault:
			if present {
				continue
			}
			ops = append(ops, document.Add(pointer, r.value))
		default:
			continue
		}

		repairs = append(repairs, Repair{
			Container: container,
			Index:     index,
			Tag:       tag.Str,
			Field:     r.Field,
			Action:    r.Action,
			Pointer:   pointer,
		})
	}
	return ops, repairs
}

// rulesFor は(コンテナ, タグ)に適用するルールを返す。
// 完全一致のルールを先に並べ、TagAnyのルールは同じフィールドを扱う完全一致ルールがない場合のみ加える。
func (n *Normalizer) rulesFor(container, tag string) []compiledRule {
	exact := n.rules[ruleKey{container: container, tag: tag}]
	wildcard := n.rules[ruleKey{container: container, tag: TagAny}]
	if len(wildcard) == 0 || tag == TagAny {
		return exact
	}

	covered := make(map[string]bool, len(exact))
	for _, r := range exact {
		covered[r.Field] = true
	}
	rules := append([]compiledRule(nil), exact...)
	for _, r := range wildcard {
		if !covered[r.Field] {
			rules = append(rules, r)
		}
	}
	return rules
}
