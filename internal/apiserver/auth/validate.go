package auth

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"account-admin/internal/shared/model"
)

// ============================================================================
// 输入校验
// ============================================================================

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func isValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// normalizeEmail 统一小写，邮箱作为唯一键大小写不敏感
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateEmail 邮箱必填且格式合法
func validateEmail(email string) string {
	if email == "" {
		return "Email is a required field."
	}
	if !isValidEmail(email) {
		return "Invalid email format."
	}
	return ""
}

// validateName 名称长度 1-124（按字符计，非字节）
func validateName(name string) string {
	if name == "" {
		return "Name must be 1 character or more."
	}
	if utf8.RuneCountInString(name) > 124 {
		return "Name must be 124 characters or less."
	}
	return ""
}

// validatePassword 密码长度 8-64
func validatePassword(password string) string {
	if len(password) < 8 {
		return "Password length must be 8 characters or more."
	}
	if len(password) > 64 {
		return "Password length must be 64 characters or less."
	}
	return ""
}

// validatePasswordPair 密码与确认密码必须一致
func validatePasswordPair(password, confirm string) string {
	if msg := validatePassword(password); msg != "" {
		return msg
	}
	if password != confirm {
		return "Passwords do not match."
	}
	return ""
}

// validateRolePayload 按角色校验附加字段
//
// admin 需要 phoneNumber，supplier 需要 company，普通用户不带附加字段。
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
