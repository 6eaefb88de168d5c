package models

import "time"

type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
}

type ChatResponse struct {
	Text           string `json:"text"`
	ConversationID string `json:"conversationId,omitempty"`
	MessageID      string `json:"messageId,omitempty"`
}

type CheckAdminResponse struct {
	IsAdmin bool   `json:"isAdmin"`
	Email   string `json:"email,omitempty"`
}

type FeedbackRequest struct {
	MessageID  string  `json:"messageId"`
	IsPositive *bool   `json:"isPositive"`
	Reason     *string `json:"reason,omitempty"`
	Comment    *string `json:"comment,omitempty"`
}

type SignInRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captchaToken,omitempty"`
}

type SignUpRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captchaToken,omitempty"`
}

type ResetPasswordRequest struct {
	Email        string `json:"email"`
	CaptchaToken string `json:"captchaToken,omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

type SessionResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	// ExpiresIn is the session lifetime in seconds; clients refresh at half of it.
	ExpiresIn    int       `json:"expiresIn"`
	UserID       string    `json:"userId"`
	Email        string    `json:"email"`
	IsAdmin      bool      `json:"isAdmin"`
}

type PublicConfigResponse struct {
	RecaptchaSiteKey string `json:"recaptchaSiteKey"`
}

type TopQuestion struct {
	Question string `json:"question"`
	Count    int    `json:"count"`
}

type HistoryStats struct {
	TotalQuestions         int           `json:"totalQuestions"`
	AverageQuestionsPerDay float64       `json:"averageQuestionsPerDay"`
	MostActiveDay          string        `json:"mostActiveDay"`
	PerDay                 []DailyCount  `json:"perDay"`
	TopQuestions           []TopQuestion `json:"topQuestions"`
}

type HistoryResponse struct {
	Rows  []Exchange   `json:"rows"`
	Stats HistoryStats `json:"stats"`
}

type DashboardStats struct {
	TotalUsers         int64            `json:"totalUsers"`
	ActiveUsers        int64            `json:"activeUsers"`
	TotalConversations int64            `json:"totalConversations"`
	TotalQuestions     int64            `json:"totalQuestions"`
	PositiveFeedback   int64            `json:"positiveFeedback"`
	NegativeFeedback   int64            `json:"negativeFeedback"`
	FeedbackByReason   map[string]int64 `json:"feedbackByReason"`
	LastWeek           []DailyCount     `json:"lastWeek"`
	GeneratedAt        time.Time        `json:"generatedAt"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}
