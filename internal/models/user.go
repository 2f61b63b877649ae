package models

// UserRole represents the roles recognised by the workflow.
type UserRole string

const (
	RoleAdmin          UserRole = "admin"
	RoleManager        UserRole = "manager"
	RoleSalesExecutive UserRole = "sales_executive"
)

// Privileged reports whether the role may act on queries it did not submit.
func (r UserRole) Privileged() bool {
	return r == RoleAdmin || r == RoleManager
}

// Actor is the authenticated caller of a workflow operation.
type Actor struct {
	ID   string
	Role UserRole
}

// User is the read-only directory record used to resolve actor references for display.
type User struct {
	ID           string       `db:"id" json:"id"`
	Name         string       `db:"name" json:"name"`
	Email        string       `db:"email" json:"email"`
	Role         UserRole     `db:"role" json:"role"`
	Organization Organization `db:"organization" json:"organization,omitempty"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// NewPagination derives page counts for a result window.
func NewPagination(page, pageSize, total int) *Pagination {
	p := &Pagination{Page: page, PageSize: pageSize, TotalCount: total}
	if pageSize > 0 {
		p.TotalPages = (total + pageSize - 1) / pageSize
	}
	return p
}
