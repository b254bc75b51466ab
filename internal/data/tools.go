package data

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/constant"
	"go/parser"
	"go/token"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ovo-bot/ovo-agent/internal/biz/domain"
	"github.com/ovo-bot/ovo-agent/internal/biz/repo"
)

const (
	ToolCalculator = "calculator"
	ToolClock      = "clock"
	ToolRecall     = "recall"

	recallLimit = 5
)

var (
	calcCommandRe = regexp.MustCompile(`(?i)(?:算一下|算算|帮我算|计算|calc(?:ulate)?)\s*[:：]?\s*([\d\s.+\-*/()]+)`)
	calcBareRe    = regexp.MustCompile(`^([\d\s.+\-*/()]+)=\s*[?？]?$`)
	calcOpRe      = regexp.MustCompile(`\d\s*[+\-*/]\s*[\d(]`)

	timeAskRe = regexp.MustCompile(`(?i)几点了|现在几点|现在时间|what time is it`)
	dateAskRe = regexp.MustCompile(`(?i)今天几号|今天是几号|今天几月几号|今天星期几|今天周几|今天礼拜几|what day is it|what's the date`)

	recallAskRe = regexp.MustCompile(`(?i)你还?记得我|我叫什么|我是谁|关于我你知道|do you remember me|what do you know about me`)

	calcReplacer = strings.NewReplacer("×", "*", "÷", "/", "（", "(", "）", ")", "＋", "+", "－", "-", "＊", "*", "／", "/", "＝", "=")

	weekdays = []string{"日", "一", "二", "三", "四", "五", "六"}
)

var errNotArithmetic = errors.New("not arithmetic")

// toolRouter answers a few questions with deterministic rules instead of
// the generator
type toolRouter struct {
	memory repo.MemoryRepo
	now    func() time.Time
	loc    *time.Location
}

// NewToolRouter creates the rule tool router
func NewToolRouter(memory repo.MemoryRepo) repo.ToolRouter {
	return newToolRouter(memory, time.Now, time.Local)
}

func newToolRouter(memory repo.MemoryRepo, now func() time.Time, loc *time.Location) *toolRouter {
	return &toolRouter{memory: memory, now: now, loc: loc}
}

// Route picks at most one tool for the event
func (r *toolRouter) Route(ctx context.Context, event *domain.ChatEvent) (domain.ToolRoute, error) {
	none := domain.ToolRoute{Kind: domain.RouteNone}
	if err := ctx.Err(); err != nil {
		return none, err
	}

	text := calcReplacer.Replace(event.NormalizedText())
	if text == "" {
		return none, nil
	}

	if expr, ok := arithmeticIn(text); ok {
		if value, err := Evaluate(expr); err == nil {
			return domain.ToolRoute{
				Kind: domain.RouteDirect,
				Tool: ToolCalculator,
				Text: fmt.Sprintf("%s = %s", compact(expr), value),
			}, nil
		}
	}

	now := event.TimeOr(r.now()).In(r.loc)
	switch {
	case timeAskRe.MatchString(text):
		return domain.ToolRoute{
			Kind: domain.RouteDirect,
			Tool: ToolClock,
			Text: fmt.Sprintf("现在是 %s。", now.Format("15:04")),
		}, nil
	case dateAskRe.MatchString(text):
		return domain.ToolRoute{
			Kind: domain.RouteDirect,
			Tool: ToolClock,
			Text: fmt.Sprintf("今天是 %d年%d月%d日，星期%s。", now.Year(), int(now.Month()), now.Day(), weekdays[now.Weekday()]),
		}, nil
	}

	if recallAskRe.MatchString(text) && r.memory != nil {
		return r.recall(ctx, event)
	}
	return none, nil
}

func (r *toolRouter) recall(ctx context.Context, event *domain.ChatEvent) (domain.ToolRoute, error) {
	facts, err := r.memory.SearchFacts(ctx, event.UserID, "", recallLimit)
	if err != nil {
		return domain.ToolRoute{Kind: domain.RouteNone}, fmt.Errorf("recall facts: %w", err)
	}
	if len(facts) == 0 {
		return domain.ToolRoute{Kind: domain.RouteNone}, nil
	}

	contents := make([]string, 0, len(facts))
	for _, f := range facts {
		contents = append(contents, f.Content)
	}
	return domain.ToolRoute{
		Kind:         domain.RouteContext,
		Tool:         ToolRecall,
		ContextText:  "关于这位用户你记得：\n- " + strings.Join(contents, "\n- "),
		FallbackText: "我记得你" + strings.Join(contents, "，") + "～",
	}, nil
}

// arithmeticIn extracts an arithmetic expression asked about in text
func arithmeticIn(text string) (string, bool) {
	var expr string
	if m := calcCommandRe.FindStringSubmatch(text); m != nil {
		expr = m[1]
	} else if m := calcBareRe.FindStringSubmatch(text); m != nil {
		expr = m[1]
	} else {
		return "", false
	}
	expr = strings.TrimSpace(expr)
	return expr, calcOpRe.MatchString(expr)
}

// Evaluate computes an arithmetic expression of numbers, parentheses and
// the four basic operators
func Evaluate(expr string) (string, error) {
	node, err := parser.ParseExpr(expr)
	if err != nil {
		return "", errNotArithmetic
	}
	v, err := evalNode(node)
	if err != nil {
		return "", err
	}
	return formatValue(v), nil
}

func evalNode(node ast.Expr) (constant.Value, error) {
	switch n := node.(type) {
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			return nil, errNotArithmetic
		}
		return constant.MakeFromLiteral(n.Value, n.Kind, 0), nil
	case *ast.ParenExpr:
		return evalNode(n.X)
	case *ast.UnaryExpr:
		if n.Op != token.ADD && n.Op != token.SUB {
			return nil, errNotArithmetic
		}
		x, err := evalNode(n.X)
		if err != nil {
			return nil, err
		}
		return constant.UnaryOp(n.Op, x, 0), nil
	case *ast.BinaryExpr:
		x, err := evalNode(n.X)
		if err != nil {
			return nil, err
		}
		y, err := evalNode(n.Y)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case token.ADD, token.SUB, token.MUL:
			return constant.BinaryOp(x, n.Op, y), nil
		case token.QUO:
			if constant.Sign(y) == 0 {
				return nil, errors.New("division by zero")
			}
			return constant.BinaryOp(constant.ToFloat(x), token.QUO, constant.ToFloat(y)), nil
		}
	}
	return nil, errNotArithmetic
}

func formatValue(v constant.Value) string {
	if i := constant.ToInt(v); i.Kind() == constant.Int {
		if n, ok := constant.Int64Val(i); ok {
			return strconv.FormatInt(n, 10)
		}
		return i.ExactString()
	}
	f, _ := constant.Float64Val(v)
	return strconv.FormatFloat(f, 'g', 10, 64)
}

func compact(expr string) string {
	return strings.Join(strings.Fields(expr), "")
}
