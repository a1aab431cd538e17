package faq

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"golang.org/x/text/unicode/norm"

	"github.com/lueurxax/faq-digest/internal/core/domain"
)

// clusterElement is one element of the model's cluster array.
type clusterElement struct {
	Question string `json:"question" jsonschema:"required,maxLength=80,description=丁寧な日本語で言い換えた代表質問"`
	Count    int    `json:"count" jsonschema:"required,minimum=1,description=membersの要素数"`
	Members  []int  `json:"members" jsonschema:"required,minItems=1,description=0始まりの質問番号"`
}

const clusterInstructionsTemplate = `あなたは社内問い合わせ窓口のFAQ編集者です。ユーザーから寄せられた%[1]d件の質問を分析してください。

1. 各質問から挨拶、前置き、言い淀み、誤字などのノイズを取り除いてください。
2. 意図が同じ質問をまとめ、すべての質問がちょうど1つのグループに属するように分類してください。漏れや重複は許されません。
3. 各グループについて、その意図を表す丁寧な日本語の質問文を%[2]d文字以内で作成してください。
4. 各グループに属する質問の番号（0始まり）を members に列挙し、count にはその件数を入れてください。count は members の要素数と必ず一致させてください。
5. すべてのグループの count の合計は必ず %[1]d にしてください。

「answer:」の行は直前の質問に対するアシスタントの回答です。短い質問の意図を判断する手がかりとして使ってください。

出力は question（文字列）、count（整数）、members（整数の配列）のキーだけを持つオブジェクトのJSON配列のみとし、前後に説明文を付けないでください。
配列の各要素は次のJSONスキーマに従います:
%[3]s`

const narrativeInstructions = `あなたは社内のナレッジマネジメント担当のアナリストです。
以下は今週よく寄せられた質問の上位リストです（件数の多い順）。このリストだけを根拠に、250文字程度の日本語で傾向分析を書いてください。
次の3点を必ず含めてください:
- 質問から読み取れる社内のニーズや困りごと
- 今後優先して取り組むべきテーマ
- 具体的な推奨アクション
見出しや箇条書きは使わず、文章のみで出力してください。`

// clusterElementSchema renders the JSON schema of one cluster element.
func clusterElementSchema() (string, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		Anonymous:                 true,
	}

	schema := reflector.Reflect(&clusterElement{})
	schema.Version = ""

	body, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal cluster schema: %w", err)
	}

	return string(body), nil
}

func buildClusterInstructions(n int, schema string) string {
	return fmt.Sprintf(clusterInstructionsTemplate, n, MaxCanonicalQuestionRunes, schema)
}

// buildClusterContent enumerates the questions, one "#i: question:" line
// each, with the bot answer on a continuation line when present.
func buildClusterContent(raw []domain.RawQuestion) string {
	var sb strings.Builder

	for i, q := range raw {
		fmt.Fprintf(&sb, "#%d: question: %s\n", i, promptLine(q.Question))

		if q.HasContext() {
			fmt.Fprintf(&sb, "answer: %s\n", promptLine(*q.Context))
		}
	}

	return sb.String()
}

// promptLine NFKC-normalises text and folds it onto one line so a
// multi-line message cannot forge an index line.
func promptLine(s string) string {
	s = strings.ToValidUTF8(s, "�")
	s = norm.NFKC.String(s)

	return strings.Join(strings.Fields(s), " ")
}

// RenderTopList renders the first k clusters as a numbered list,
// one "<rank>. 「<question>」（<count>件）" line each.
func RenderTopList(clusters []domain.ClusterResult, k int) string {
	if k > len(clusters) {
		k = len(clusters)
	}

	lines := make([]string, 0, k)

	for i := 0; i < k; i++ {
		lines = append(lines, fmt.Sprintf("%d. 「%s」（%d件）", i+1, clusters[i].CanonicalQuestion, clusters[i].Count))
	}

	return strings.Join(lines, "\n")
}
