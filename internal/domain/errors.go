package domain

import "errors"

// ErrUserNotFound возвращается, когда пользователь не существует.
var ErrUserNotFound = errors.New("пользователь не найден")

// ErrPresenceUnavailable возвращается при попытке обновить координаты,
// пока пользователь недоступен.
var ErrPresenceUnavailable = errors.New("сначала станьте доступны, потом отправляйте локацию")
