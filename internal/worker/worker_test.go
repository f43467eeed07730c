package worker

import (
	"testing"
	"time"
)

func TestParseJob(t *testing.T) {
	table := []struct {
		name    string
		values  map[string]any
		wantErr bool
	}{
		{
			name: "complete job",
			values: map[string]any{
				"announcementID": "a-1",
				"recordingID":    "r-1",
				"recordingName":  "morning-greeting",
				"runAt":          "2025-03-01T09:00:00Z",
			},
		},
		{
			name: "missing announcementID",
			values: map[string]any{
				"recordingID": "r-1",
			},
			wantErr: true,
		},
		{
			name: "missing recordingID",
			values: map[string]any{
				"announcementID": "a-1",
			},
			wantErr: true,
		},
		{
			name: "bad runAt",
			values: map[string]any{
				"announcementID": "a-1",
				"recordingID":    "r-1",
				"runAt":          "tomorrow-ish",
			},
			wantErr: true,
		},
	}

	for _, tc := range table {
		t.Run(tc.name, func(t *testing.T) {
			job, err := parseJob(tc.values)
			if tc.wantErr {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseJob returned error: %v", err)
			}
			if job.AnnouncementID != "a-1" || job.RecordingID != "r-1" {
				t.Errorf("parsed job has wrong IDs: %+v", job)
			}
			want := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
			if !job.RunTime.Equal(want) {
				t.Errorf("RunTime = %v, want %v", job.RunTime, want)
			}
		})
	}
}
