package models

import (
	"errors"
	"testing"
)

func intPtr(v int) *int { return &v }

func TestSetRulesValidate(t *testing.T) {
	tests := []struct {
		name    string
		rules   SetRules
		wantErr error
	}{
		{
			name:  "волейбольный формат по умолчанию",
			rules: SetRules{BestOf: 5, MaxPointsPerSet: 25, WinBy: 2},
		},
		{
			name:  "формат с жёстким потолком",
			rules: SetRules{BestOf: 3, MaxPointsPerSet: 21, WinBy: 2, PointCap: intPtr(30)},
		},
		{
			name:    "чётный best_of",
			rules:   SetRules{BestOf: 4, MaxPointsPerSet: 25, WinBy: 2},
			wantErr: ErrInvalidBestOf,
		},
		{
			name:    "нулевой best_of",
			rules:   SetRules{BestOf: 0, MaxPointsPerSet: 25, WinBy: 2},
			wantErr: ErrInvalidBestOf,
		},
		{
			name:    "нулевой потолок очков в сете",
			rules:   SetRules{BestOf: 3, MaxPointsPerSet: 0, WinBy: 2},
			wantErr: ErrInvalidMaxPoints,
		},
		{
			name:    "win_by меньше единицы",
			rules:   SetRules{BestOf: 3, MaxPointsPerSet: 21, WinBy: 0},
			wantErr: ErrInvalidWinBy,
		},
		{
			name:    "point_cap не выше обычного порога",
			rules:   SetRules{BestOf: 3, MaxPointsPerSet: 21, WinBy: 2, PointCap: intPtr(21)},
			wantErr: ErrInvalidPointCap,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rules.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSetRulesSetWon(t *testing.T) {
	winByTwo := SetRules{BestOf: 3, MaxPointsPerSet: 21, WinBy: 2}
	capped := SetRules{BestOf: 3, MaxPointsPerSet: 21, WinBy: 2, PointCap: intPtr(30)}

	tests := []struct {
		name     string
		rules    SetRules
		score    int
		opponent int
		want     bool
	}{
		{"обычная победа 21-15", winByTwo, 21, 15, true},
		{"ровно win_by: 21-19", winByTwo, 21, 19, true},
		{"разница в один балл не закрывает сет", winByTwo, 21, 20, false},
		{"деюс продолжается: 22-21", winByTwo, 22, 21, false},
		{"деюс разрешён: 23-21", winByTwo, 23, 21, true},
		{"до порога сет не закрыт", winByTwo, 20, 10, false},
		{"потолок закрывает сет при разнице в один", capped, 30, 29, true},
		{"до потолка действует win_by", capped, 29, 28, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rules.SetWon(tt.score, tt.opponent); got != tt.want {
				t.Errorf("SetWon(%d, %d) = %v, want %v", tt.score, tt.opponent, got, tt.want)
			}
		})
	}
}

func TestSetRulesSetsToWin(t *testing.T) {
	tests := []struct {
		bestOf int
		want   int
	}{
		{1, 1},
		{3, 2},
		{5, 3},
	}
	for _, tt := range tests {
		rules := SetRules{BestOf: tt.bestOf}
		if got := rules.SetsToWin(); got != tt.want {
			t.Errorf("SetsToWin() for best_of=%d = %d, want %d", tt.bestOf, got, tt.want)
		}
	}
}

func TestMatchStatusTerminal(t *testing.T) {
	tests := []struct {
		status MatchStatus
		want   bool
	}{
		{MatchStatusScheduled, false},
		{MatchStatusLive, false},
		{MatchStatusCompleted, true},
		{MatchStatusCanceled, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("Terminal() for %q = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestMatchSnapshot(t *testing.T) {
	winner := "Falcons"
	m := &Match{
		ID:         "m1",
		TeamA:      "Falcons",
		TeamB:      "Ravens",
		ScoreA:     0,
		ScoreB:     0,
		SetsWonA:   2,
		SetsWonB:   1,
		CurrentSet: 4,
		Rules:      SetRules{BestOf: 3, MaxPointsPerSet: 21, WinBy: 2},
		Status:     MatchStatusCompleted,
		Winner:     &winner,
		Version:    7,
	}

	snap := m.Snapshot()
	if snap.ID != "m1" || snap.TeamA != "Falcons" || snap.TeamB != "Ravens" {
		t.Errorf("snapshot identity fields diverged: %+v", snap)
	}
	if snap.MaxPointsPerSet != 21 {
		t.Errorf("MaxPointsPerSet = %d, want 21", snap.MaxPointsPerSet)
	}
	if snap.Winner == nil || *snap.Winner != "Falcons" {
		t.Errorf("Winner = %v, want Falcons", snap.Winner)
	}
}
