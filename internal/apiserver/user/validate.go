package user

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"account-admin/internal/shared/model"
)

// 校验规则与注册入口保持一致

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// normalizedEmail 校验并小写归一邮箱，失败返回错误消息
func normalizedEmail(email string) (string, string) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", "Email is a required field."
	}
	if !emailRegex.MatchString(email) {
		return "", "Invalid email format."
	}
	return email, ""
}

func validateName(name string) string {
	if name == "" {
		return "Name must be 1 character or more."
	}
	if utf8.RuneCountInString(name) > 124 {
		return "Name must be 124 characters or less."
	}
	return ""
}

func validatePasswordPair(password, confirm string) string {
	if len(password) < 8 {
		return "Password length must be 8 characters or more."
	}
	if len(password) > 64 {
		return "Password length must be 64 characters or less."
	}
	if password != confirm {
		return "Passwords do not match."
	}
	return ""
}

func validateRolePayload(role model.UserRole, phoneNumber, company string) string {
	switch role {
	case model.UserRoleAdmin:
		if phoneNumber == "" {
			return "phoneNumber is required for admin accounts"
		}
	case model.UserRoleSupplier:
		if company == "" {
			return "company is required for supplier accounts"
		}
	}
	return ""
}
