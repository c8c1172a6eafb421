package units

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"text/template"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTemplateFuncMap(t *testing.T) {
	funcMap := GetTemplateFuncMap()

	expected := []string{"truncate", "lower", "upper", "title", "trim", "contains", "replace", "join", "split", "label", "quote"}
	assert.Len(t, funcMap, len(expected))
	for _, name := range expected {
		assert.Contains(t, funcMap, name, "FuncMap should contain function '%s'", name)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		length int
		want   string
	}{
		{name: "short string unchanged", input: "hello", length: 10, want: "hello"},
		{name: "exact length unchanged", input: "hello", length: 5, want: "hello"},
		{name: "truncated with ellipsis", input: "hello world", length: 8, want: "hello..."},
		{name: "tiny length without ellipsis", input: "hello", length: 2, want: "he"},
		{name: "zero length", input: "hello", length: 0, want: ""},
		{name: "negative length", input: "hello", length: -1, want: ""},
		{name: "multibyte boundary respected", input: "héllo wørld", length: 5, want: "h..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate(tt.input, tt.length))
		})
	}
}

func TestTemplateFunctions_InPrompt(t *testing.T) {
	tmpl, err := template.New("p").Funcs(GetTemplateFuncMap()).Parse(
		`{{title .Subject}} / {{label 1}} / {{label -1}}{{"\n"}}{{quote "a\nb"}}`)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tmpl.Execute(&buf, map[string]string{"Subject": "ship the release"}))
	assert.Equal(t, "Ship The Release / affirm / reject\n> a\n> b", buf.String())
}

// FuzzTruncate checks that truncation never exceeds the limit and never
// splits a rune of valid input.
func FuzzTruncate(f *testing.F) {
	f.Add("hello world", 5)
	f.Add("", 10)
	f.Add("héllo wørld", 8)
	f.Add(strings.Repeat("x", 1000), 100)
	f.Add("🚀🌟💫", 6)

	f.Fuzz(func(t *testing.T, input string, length int) {
		result := truncate(input, length)
		if length <= 0 && result != "" {
			t.Fatalf("truncate(%q, %d) = %q, want empty", input, length, result)
		}
		if length > 0 && len(result) > length {
			t.Fatalf("truncate(%q, %d) = %q exceeds limit", input, length, result)
		}
		if utf8.ValidString(input) && !utf8.ValidString(result) {
			t.Fatalf("truncate(%q, %d) = %q split a rune", input, length, result)
		}
	})
}

// TestTemplateFunctions_ConcurrentRender renders one prompt from many
// goroutines, as llm_vote samples do. Run with -race.
func TestTemplateFunctions_ConcurrentRender(t *testing.T) {
	tmpl, err := template.New("p").Funcs(GetTemplateFuncMap()).Parse(`{{title .}}`)
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]string, workers)
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var buf bytes.Buffer
			for range 50 {
				buf.Reset()
				if err := tmpl.Execute(&buf, "ship the release"); err != nil {
					errs[i] = err
					return
				}
			}
			results[i] = buf.String()
		}()
	}
	wg.Wait()

	for i := range workers {
		require.NoError(t, errs[i])
		assert.Equal(t, "Ship The Release", results[i])
	}
}
