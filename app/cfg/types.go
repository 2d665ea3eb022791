package cfg

import "time"

type Cfg struct {
	// Collection sources
	FederatedBaseURL string
	MirrorBaseURL    string
	LiveUsername     string
	LivePassword     string

	// Collection behavior
	WindowDays   int
	MaxItems     int
	MinPosts     int
	AccountDelay time.Duration
	AccountsFile string

	// Persistence
	DBPath string

	// Reporting
	ReportTime     string
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	EmailFrom      string
	EmailTo        string
	ShiftThreshold float64

	// Sentiment keyword buckets
	OilKeywords         []string
	ElectricityKeywords []string

	// HTTP server
	Port         string
	APIAccessKey string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	RunNow    bool
	Version   string
}
