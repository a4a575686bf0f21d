package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanJSONBlock(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "bare JSON untouched",
			in:   `{"isJobRelated": true}`,
			want: `{"isJobRelated": true}`,
		},
		{
			name: "json fence",
			in:   "```json\n{\"confidence\": 0.9}\n```",
			want: `{"confidence": 0.9}`,
		},
		{
			name: "anonymous fence",
			in:   "```\n{\"confidence\": 0.9}\n```",
			want: `{"confidence": 0.9}`,
		},
		{
			name: "fence with surrounding whitespace",
			in:   "  ```json\n{}\n```  ",
			want: `{}`,
		},
		{
			name: "brace on fence line is not a language tag",
			in:   "```{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSONBlock(tt.in))
		})
	}
}
