package model

// RegisterRequest is the payload for account registration.
type RegisterRequest struct {
	FullName   string `json:"full_name" binding:"required,min=2,max=120"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=8,max=72"`
	DOB        string `json:"dob" binding:"required,datetime=2006-01-02"`
	NationalID string `json:"national_id" binding:"required,national_id"`
	Phone      string `json:"phone" binding:"required,vn_phone"`
	DeviceID   string `json:"device_id" binding:"omitempty,max=128"`
}

// LoginRequest authenticates by email or national ID.
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required,min=3,max=254"`
	Password   string `json:"password" binding:"required,min=1,max=72"`
}

// RecordResponseRequest is the payload for answering one quiz question.
// SelectedIndex is the displayed position, bounds-checked by the session
// engine against that question's own choice order.
type RecordResponseRequest struct {
	QuestionID    string `json:"question_id" binding:"required,max=64"`
	SelectedIndex *int   `json:"selected_index" binding:"required,min=0"`
}

// SubmitEssayRequest carries an essay attempt. Over-length content is
// truncated server-side, so no upper bound is enforced at binding time.
type SubmitEssayRequest struct {
	Content string `json:"content" binding:"required"`
}

// AdminLoginRequest authenticates the env-provisioned admin account.
type AdminLoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=1,max=72"`
}

// ResetExamRequest is the admin payload to wipe a contestant's exam state.
type ResetExamRequest struct {
	NationalID string   `json:"national_id" binding:"required,national_id"`
	Scopes     []string `json:"scopes" binding:"omitempty,dive,oneof=quiz essay"`
}

// GradeEssayRequest is the admin payload recording a manual essay grade.
type GradeEssayRequest struct {
	NationalID string  `json:"national_id" binding:"required,national_id"`
	Score      float64 `json:"score" binding:"min=0,max=60"`
	Comment    string  `json:"comment" binding:"omitempty,max=1000"`
}
