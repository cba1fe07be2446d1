package model

type RefreshJob struct {
	ID        string `json:"id"`
	WeekStart string `json:"week_start,omitempty"`
}

type RetrieveRequest struct {
	Identifier string `json:"identifier" binding:"required_with=Secret"`
	Secret     string `json:"secret" binding:"required_with=Identifier"`
	Week       string `json:"week" binding:"omitempty,datetime=2006-01-02"`
	Remember   bool   `json:"remember"`
}

type PrefetchRequest struct {
	Week string `json:"week" binding:"required,datetime=2006-01-02"`
}

type RefreshRequest struct {
	Week string `json:"week" binding:"omitempty,datetime=2006-01-02"`
}
