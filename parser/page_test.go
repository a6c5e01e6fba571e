package parser

import "testing"

func TestParseTitle(t *testing.T) {
	tests := []struct {
		title string
		venue string
		race  string
	}{
		{"有馬記念 出馬表 | 2024年12月22日 中山11R レース情報(JRA) - netkeiba", "中山", "11R"},
		{"東京1R 出馬表", "東京", "1R"},
		{"有馬記念(G1) 出馬表 | 2023年12月24日\u3000中山11R レース情報", "中山", "11R"},
		{"2023年12月24日\u00a0京都2R", "京都", "2R"},
		{"阪神\t3R", "", ""},
		{"No race here", "", ""},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			venue, race := ParseTitle(tt.title)
			if venue != tt.venue || race != tt.race {
				t.Errorf("ParseTitle(%q) = (%q, %q), want (%q, %q)", tt.title, venue, race, tt.venue, tt.race)
			}
		})
	}
}

func TestParsePostTime(t *testing.T) {
	tests := []struct {
		text     string
		expected string
	}{
		{"15:40発走 / 芝2500m (右)", "15:40"},
		{"9:50発走 / ダ1200m", "9:50"},
		{"発走 10:05 then 11:00", "10:05"},
		{"芝2500m", ""},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := ParsePostTime(tt.text); got != tt.expected {
				t.Errorf("ParsePostTime(%q) = %q, want %q", tt.text, got, tt.expected)
			}
		})
	}
}

func TestParseRaceID(t *testing.T) {
	tests := []struct {
		href   string
		want   string
		wantOK bool
	}{
		{"../race/shutuba.html?race_id=202406050811&rf=race_list", "202406050811", true},
		{"/race/result.html?race_id=202406050811", "202406050811", true},
		{"/race/shutuba.html?race_id=2024060508", "", false},
		{"/top/?kaisai_date=20241222", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			got, ok := ParseRaceID(tt.href)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseRaceID(%q) = (%q, %v), want (%q, %v)", tt.href, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestIsEntryHeader(t *testing.T) {
	if !IsEntryHeader([]string{"枠", "馬番", "印", "馬名"}) {
		t.Fatal("expected entry header to match")
	}
	if IsEntryHeader([]string{"日付", "開催", "天気"}) {
		t.Fatal("unexpected match on unrelated header")
	}

	cells := make([]string, 0, HeaderScanLimit+1)
	for i := 0; i < HeaderScanLimit; i++ {
		cells = append(cells, "x")
	}
	cells = append(cells, "騎手")
	if IsEntryHeader(cells) {
		t.Fatal("markers beyond the scan limit should be ignored")
	}
}

func TestResolveColumns(t *testing.T) {
	idx, ok := ResolveColumns([]string{"枠", "馬番", "印", "馬名", "性齢", "斤量", "騎手", "厩舎"})
	if !ok {
		t.Fatal("expected columns to resolve")
	}
	want := ColumnIndex{Gate: 0, HorseNumber: 1, HorseName: 3, Jockey: 6}
	if idx != want {
		t.Fatalf("ResolveColumns = %+v, want %+v", idx, want)
	}

	idx, ok = ResolveColumns([]string{"馬番", "馬名"})
	if !ok {
		t.Fatal("partial header should still resolve")
	}
	if idx.Gate != Absent || idx.Jockey != Absent {
		t.Fatalf("missing columns should be Absent, got %+v", idx)
	}

	if _, ok := ResolveColumns([]string{"日付", "天気"}); ok {
		t.Fatal("unrelated header should not resolve")
	}
}

func TestPick(t *testing.T) {
	cols := []string{" 1 ", "2"}
	if got := Pick(cols, 0); got != "1" {
		t.Fatalf("Pick(0) = %q", got)
	}
	if got := Pick(cols, Absent); got != "" {
		t.Fatalf("Pick(Absent) = %q", got)
	}
	if got := Pick(cols, 5); got != "" {
		t.Fatalf("Pick(out of range) = %q", got)
	}
}
