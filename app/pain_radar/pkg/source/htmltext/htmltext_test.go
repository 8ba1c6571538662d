package htmltext

import "testing"

func TestStrip(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", "  hello   world ", "hello world"},
		{"paragraphs", "<p>first  line</p><p>second</p>", "first line\nsecond"},
		{"entities", "Tom &amp; Jerry &gt; cats", "Tom & Jerry > cats"},
		{"script dropped", "<div>keep<script>var x = 1;</script></div>", "keep"},
		{"reddit md", `<!-- SC_OFF --><div class="md"><p>My app <a href="#">crashes</a> daily</p></div>`, "My app crashes daily"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Strip(tt.in); got != tt.want {
				t.Errorf("Strip() = %q, want %q", got, tt.want)
			}
		})
	}
}
