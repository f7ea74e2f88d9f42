package domain

type CtxKey string

const (
	KeyUserID    CtxKey = "UserID"
	KeyUserPhone CtxKey = "Phone"
	KeyUserRole  CtxKey = "Role"
)
