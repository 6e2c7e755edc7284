package state

import "encoding/json"

const (
	DefaultChar = "□"
	DefaultKind = "default"
)

// Token is a single card/piece. ID is its stable identity; every other field can change.
// The underscore-prefixed fields are runtime flags set by reversal, tagging, attachment and
// merge/split operations.
type Token struct {
	ID    string         `json:"id"`
	Label *string        `json:"label,omitempty"`
	Group *string        `json:"group,omitempty"`
	Text  string         `json:"text"`
	Meta  map[string]any `json:"meta"`
	Char  string         `json:"char"`
	Kind  string         `json:"kind"`
	Index int            `json:"index"`

	Rev            *bool    `json:"_rev,omitempty"`
	Tags           []string `json:"_tags,omitempty"`
	Attachments    []any    `json:"_attachments,omitempty"`
	AttachedTo     *string  `json:"_attachedTo,omitempty"`
	AttachmentType *string  `json:"_attachmentType,omitempty"`

	Merged     *bool    `json:"_merged,omitempty"`
	MergedInto *string  `json:"_mergedInto,omitempty"`
	MergedFrom []string `json:"_mergedFrom,omitempty"`
	MergedAt   *int64   `json:"_mergedAt,omitempty"`
	Split      *bool    `json:"_split,omitempty"`
	SplitInto  []string `json:"_splitInto,omitempty"`
	SplitFrom  *string  `json:"_splitFrom,omitempty"`
	SplitIndex *int     `json:"_splitIndex,omitempty"`
	SplitAt    *int64   `json:"_splitAt,omitempty"`
}

// NewToken returns a token with the default glyph and kind.
func NewToken(id string) Token {
	return Token{
		ID:   id,
		Meta: map[string]any{},
		Char: DefaultChar,
		Kind: DefaultKind,
	}
}

func (t *Token) UnmarshalJSON(data []byte) error {
	type plain Token
	p := plain{Char: DefaultChar, Kind: DefaultKind}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Meta == nil {
		p.Meta = map[string]any{}
	}
	*t = Token(p)
	return nil
}

// Placement is a token put down in a zone. TokenSnapshot duplicates the token so that a zone
// can be read without resolving TokenID against a stack.
type Placement struct {
	ID            string   `json:"id"`
	TokenID       string   `json:"tokenId"`
	TokenSnapshot Token    `json:"tokenSnapshot"`
	X             *float64 `json:"x,omitempty"`
	Y             *float64 `json:"y,omitempty"`
	FaceUp        bool     `json:"faceUp"`
	Label         *string  `json:"label,omitempty"`
	TS            int64    `json:"ts"`
	Reversed      bool     `json:"reversed"`
	Tags          []string `json:"tags"`
}

func (p *Placement) UnmarshalJSON(data []byte) error {
	type plain Placement
	v := plain{FaceUp: true}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Tags == nil {
		v.Tags = []string{}
	}
	*p = Placement(v)
	return nil
}
