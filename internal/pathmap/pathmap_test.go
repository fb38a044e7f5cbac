package pathmap

import "testing"

func TestRulesMap(t *testing.T) {
	rules := Rules{
		{SourcePathFormat: FormatWindows, SourcePath: `C:\Projects`, DestinationPath: "/mnt/projects"},
		{SourcePathFormat: FormatWindows, SourcePath: `C:\Projects\Shot01`, DestinationPath: "/mnt/shot01"},
		{SourcePathFormat: FormatPOSIX, SourcePath: "/home/artist/proj", DestinationPath: "/mnt/proj"},
	}

	tests := []struct {
		name   string
		path   string
		want   string
		wantOK bool
	}{
		{name: "windows prefix", path: `C:\Projects\Game\Game.uproject`, want: "/mnt/projects/Game/Game.uproject", wantOK: true},
		{name: "windows case insensitive", path: `c:\projects\Game`, want: "/mnt/projects/Game", wantOK: true},
		{name: "longest prefix wins", path: `C:\Projects\Shot01\queue.utxt`, want: "/mnt/shot01/queue.utxt", wantOK: true},
		{name: "posix exact", path: "/home/artist/proj", want: "/mnt/proj", wantOK: true},
		{name: "posix nested", path: "/home/artist/proj/a/b.txt", want: "/mnt/proj/a/b.txt", wantOK: true},
		{name: "partial component", path: "/home/artist/project/x", want: "/home/artist/project/x", wantOK: false},
		{name: "posix case sensitive", path: "/HOME/artist/proj", want: "/HOME/artist/proj", wantOK: false},
		{name: "no match", path: "/tmp/other", want: "/tmp/other", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := rules.Map(tt.path)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Map(%q) = (%q, %v), want (%q, %v)", tt.path, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFromPayload(t *testing.T) {
	rules, err := FromPayload([]any{
		map[string]any{"source_path_format": "POSIX", "source_path": "/a", "destination_path": "/b"},
		map[string]any{"source_path_format": "POSIX", "source_path": "/a/long", "destination_path": "/c"},
	})
	if err != nil {
		t.Fatalf("FromPayload() error = %v", err)
	}

	if len(rules) != 2 || rules[0].SourcePath != "/a/long" {
		t.Errorf("FromPayload() = %+v, want longest source first", rules)
	}

	if got, err := FromPayload(nil); err != nil || got != nil {
		t.Errorf("FromPayload(nil) = (%v, %v), want (nil, nil)", got, err)
	}

	invalid := []any{
		"not a list",
		[]any{"not an object"},
		[]any{map[string]any{"source_path": "/a"}},
	}

	for _, v := range invalid {
		if _, err := FromPayload(v); err == nil {
			t.Errorf("FromPayload(%v) error = nil, want error", v)
		}
	}
}
