// Package iocli - ввод/вывод интерактивного клиента.
package iocli

import "io"

// IO - терминал клиента: вывод и чтение ответов пользователя.
type IO interface {
	io.Writer
	Println(a ...any)
	Printf(format string, a ...any)
	ReadInput(prompt string) (string, error)
	ReadPassword(prompt string) (string, error)
}
