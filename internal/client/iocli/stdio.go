package iocli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/term"
)

// Stdio - IO поверх потоков процесса. Пароль читается без эха,
// если ввод - терминал; иначе как обычная строка.
type Stdio struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
	tty bool
}

// NewStdio создает IO поверх os.Stdin и os.Stdout.
func NewStdio() IO {
	fd := int(os.Stdin.Fd())
	return &Stdio{
		in:  bufio.NewReader(os.Stdin),
		out: os.Stdout,
		fd:  fd,
		tty: term.IsTerminal(fd),
	}
}

// NewStreams создает IO поверх произвольных потоков (скрипты, тесты).
func NewStreams(in io.Reader, out io.Writer) IO {
	return &Stdio{in: bufio.NewReader(in), out: out, fd: -1}
}

func (s *Stdio) Write(p []byte) (int, error) {
	return s.out.Write(p)
}

func (s *Stdio) Println(a ...any) {
	fmt.Fprintln(s.out, a...)
}

func (s *Stdio) Printf(format string, a ...any) {
	fmt.Fprintf(s.out, format, a...)
}

func (s *Stdio) ReadInput(prompt string) (string, error) {
	s.Printf("%s", prompt)
	input, err := s.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || input == "") {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

func (s *Stdio) ReadPassword(prompt string) (string, error) {
	if !s.tty {
		return s.ReadInput(prompt)
	}

	s.Printf("%s", prompt)
	pwBytes, err := term.ReadPassword(s.fd)
	s.Println("")
	if err != nil {
		return "", err
	}
	return string(pwBytes), nil
}
