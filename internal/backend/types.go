package backend

import "time"

// Plan is one subscription tier offered by the backend.
type Plan struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	MonthlyPrice float64 `json:"monthly_price"`
	MessageQuota int     `json:"message_quota"`
	Current      bool    `json:"current"`
}

// TopUpResult acknowledges a credit top-up.
type TopUpResult struct {
	Balance   float64   `json:"balance"`
	ChargedAt time.Time `json:"charged_at"`
}

// WidgetSettings is the storefront widget appearance and feature
// configuration. The backend owns it; this client relays reads and writes.
type WidgetSettings struct {
	Enabled         bool   `json:"enabled"`
	AccentColor     string `json:"accent_color"`
	Position        string `json:"position"`
	WelcomeMessage  string `json:"welcome_message"`
	OfflineMessage  string `json:"offline_message"`
	ShowAgentAvatar bool   `json:"show_agent_avatar"`
	CollectEmail    bool   `json:"collect_email"`
}

// Dashboard is the analytics snapshot rendered by the merchant dashboards.
type Dashboard struct {
	Shop            string           `json:"shop"`
	TotalChats      int              `json:"total_chats"`
	OpenChats       int              `json:"open_chats"`
	MessagesSent    int              `json:"messages_sent"`
	AvgResponseSecs float64          `json:"avg_response_secs"`
	CreditBalance   float64          `json:"credit_balance"`
	Daily           []DashboardPoint `json:"daily"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// DashboardPoint is one day of chart data.
type DashboardPoint struct {
	Date     string `json:"date"`
	Chats    int    `json:"chats"`
	Messages int    `json:"messages"`
}
