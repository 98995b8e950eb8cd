package scpi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"psu-controller/pkg/protocol"
)

var (
	ErrEmpty  = errors.New("空命令")
	ErrSyntax = errors.New("命令语法错误")
)

// Terminator 原始套接字上的行结束符
const Terminator = "\n"

// Command 解析后的 SCPI 命令
type Command struct {
	Header string
	Query  bool
	Args   []string
}

// Is 命令头是否匹配助记符模式，例如 "INSTrument:SELect"
func (c Command) Is(pattern string) bool {
	return Match(pattern, c.Header)
}

func (c Command) String() string {
	var sb strings.Builder
	sb.WriteString(c.Header)
	if c.Query {
		sb.WriteByte('?')
	}
	if len(c.Args) > 0 {
		sb.WriteByte(' ')
		sb.WriteString(strings.Join(c.Args, ","))
	}
	return sb.String()
}

// ParseCommand 解析一行 SCPI 命令
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, ErrEmpty
	}

	header, rest, _ := strings.Cut(line, " ")
	cmd := Command{}
	if strings.HasSuffix(header, "?") {
		cmd.Query = true
		header = strings.TrimSuffix(header, "?")
	}
	header = strings.TrimPrefix(header, ":")
	if !validHeader(header) {
		return Command{}, fmt.Errorf("%w: %q", ErrSyntax, line)
	}
	cmd.Header = strings.ToUpper(header)

	if rest = strings.TrimSpace(rest); rest != "" {
		for _, arg := range strings.Split(rest, ",") {
			arg = strings.TrimSpace(arg)
			if arg == "" {
				return Command{}, fmt.Errorf("%w: 空参数 %q", ErrSyntax, line)
			}
			cmd.Args = append(cmd.Args, arg)
		}
	}
	return cmd, nil
}

func validHeader(h string) bool {
	if h == "" {
		return false
	}
	for i, r := range h {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == ':' && i > 0 && i < len(h)-1 && h[i-1] != ':':
		case r == '*' && i == 0:
		default:
			return false
		}
	}
	return true
}

// Match 按 SCPI 长短格式规则比较命令头。
// 模式中的大写部分为短格式，完整单词为长格式，比较不区分大小写。
func Match(pattern, header string) bool {
	pparts := strings.Split(strings.TrimPrefix(pattern, ":"), ":")
	hparts := strings.Split(strings.TrimPrefix(header, ":"), ":")
	if len(pparts) != len(hparts) {
		return false
	}
	for i, p := range pparts {
		h := strings.ToUpper(hparts[i])
		if h != shortForm(p) && h != strings.ToUpper(p) {
			return false
		}
	}
	return true
}

func shortForm(mnemonic string) string {
	var sb strings.Builder
	for _, r := range mnemonic {
		if (r >= 'a' && r <= 'z') || r == '?' {
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// ParseIdentity 解析 *IDN? 响应：厂商,型号,序列号,固件版本
func ParseIdentity(resp string) (protocol.Identity, error) {
	fields := strings.Split(strings.TrimSpace(resp), ",")
	if len(fields) != 4 {
		return protocol.Identity{}, fmt.Errorf("%w: *IDN? 响应字段数 %d", ErrSyntax, len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return protocol.Identity{
		Manufacturer: fields[0],
		Model:        fields[1],
		Serial:       fields[2],
		Firmware:     fields[3],
	}, nil
}

// FormatIdentity 生成 *IDN? 响应
func FormatIdentity(id protocol.Identity) string {
	return strings.Join([]string{id.Manufacturer, id.Model, id.Serial, id.Firmware}, ",")
}

// ParseFloat 解析数值响应
func ParseFloat(resp string) (float32, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(resp), 32)
	if err != nil {
		return 0, fmt.Errorf("%w: 数值响应 %q", ErrSyntax, resp)
	}
	return float32(v), nil
}

// FormatFloat 以固定小数位格式化数值参数
func FormatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', 3, 32)
}

// ParseChannel 解析通道参数 "CH1" 或 "1"
func ParseChannel(arg string) (protocol.Channel, error) {
	s := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(arg)), "CH")
	n, err := strconv.Atoi(s)
	if err != nil || n < int(protocol.CH1) || n > int(protocol.CH3) {
		return 0, fmt.Errorf("%w: 通道 %q", ErrSyntax, arg)
	}
	return protocol.Channel(n), nil
}

// ParseState 解析输出状态参数 ON/OFF/1/0
func ParseState(arg string) (protocol.OutputState, error) {
	switch strings.ToUpper(strings.TrimSpace(arg)) {
	case "ON", "1":
		return protocol.ON, nil
	case "OFF", "0":
		return protocol.OFF, nil
	}
	return protocol.OFF, fmt.Errorf("%w: 输出状态 %q", ErrSyntax, arg)
}
