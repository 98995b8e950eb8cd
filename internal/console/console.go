package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"psu-controller/internal/channel"
)

var ErrUsage = errors.New("用法错误")

// Kind 操作员命令类型
type Kind int

const (
	Toggle Kind = iota + 1
	Set
	Type
	Enter
	Blur
	Status
	Help
	Quit
)

// Axis 文本输入框
type Axis string

const (
	Voltage Axis = "v"
	Current Axis = "i"
)

// Command 一条操作员命令
type Command struct {
	Kind    Kind
	Channel channel.ID
	Axis    Axis
	Text    string
	Current string
}

// Usage 命令帮助
const Usage = `toggle <ch>              切换通道输出
set <ch> <volts> [amps]  输入并确认设定值
type <ch> <v|i> <text>   仅输入文本
enter <ch>               按下回车（未失去焦点）
blur <ch>                失去焦点（未按回车）
status                   显示通道状态
help                     显示本帮助
quit                     退出
通道: 1 2 3 series parallel`

// Parse 解析一行操作员输入
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: 空命令", ErrUsage)
	}

	verb, args := strings.ToLower(fields[0]), fields[1:]
	switch verb {
	case "status", "s":
		return Command{Kind: Status}, nil
	case "help", "?":
		return Command{Kind: Help}, nil
	case "quit", "exit", "q":
		return Command{Kind: Quit}, nil
	}

	if len(args) == 0 {
		return Command{}, fmt.Errorf("%w: %s 需要通道", ErrUsage, verb)
	}
	id, err := channel.ParseID(args[0])
	if err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	args = args[1:]

	switch verb {
	case "toggle", "t":
		return Command{Kind: Toggle, Channel: id}, nil
	case "enter":
		return Command{Kind: Enter, Channel: id}, nil
	case "blur":
		return Command{Kind: Blur, Channel: id}, nil
	case "set":
		if len(args) < 1 || len(args) > 2 {
			return Command{}, fmt.Errorf("%w: set <ch> <volts> [amps]", ErrUsage)
		}
		cmd := Command{Kind: Set, Channel: id, Text: args[0]}
		if len(args) == 2 {
			cmd.Current = args[1]
		}
		return cmd, nil
	case "type":
		if len(args) != 2 {
			return Command{}, fmt.Errorf("%w: type <ch> <v|i> <text>", ErrUsage)
		}
		axis := Axis(strings.ToLower(args[0]))
		if axis != Voltage && axis != Current {
			return Command{}, fmt.Errorf("%w: 输入框必须是 v 或 i", ErrUsage)
		}
		return Command{Kind: Type, Channel: id, Axis: axis, Text: args[1]}, nil
	}
	return Command{}, fmt.Errorf("%w: 未知命令 %q", ErrUsage, verb)
}

// Render 输出通道状态表，ON/OFF 与颜色由 enabled 推导
func Render(w io.Writer, b *channel.Bank) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANNEL\tSTATE\tSET V\tSET A\tMEAS V\tMEAS A\tMEAS W\tRANGE")
	for _, ch := range b.Channels() {
		fmt.Fprintf(tw, "%s\t%s(%s)\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%g-%gV %g-%gA\n",
			ch.ID,
			channel.Label(ch.Enabled), channel.Color(ch.Enabled),
			ch.Setpoint.Voltage, ch.Setpoint.Current,
			ch.Measured.Voltage, ch.Measured.Current, ch.Measured.Power,
			ch.Bounds.Voltage.Min, ch.Bounds.Voltage.Max,
			ch.Bounds.Current.Min, ch.Bounds.Current.Max,
		)
	}
	return tw.Flush()
}

// ReadLines 逐行读取输入并发送到 out，读完或 ctx 取消后关闭 out
func ReadLines(ctx context.Context, r io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case out <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
}
