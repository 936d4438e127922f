package formula

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type NodePosition struct {
	Start int
	End   int
}

// EvalContext resolves cell values for formula evaluation. Implementations
// evaluate referenced formulas on demand.
type EvalContext interface {
	CellValue(row, col int) Primitive
	InBounds(row, col int) bool
}

// ASTNode is a parsed formula expression. References hold absolute grid
// coordinates.
type ASTNode interface {
	Eval(ctx EvalContext) (Primitive, error)
	GetPosition() NodePosition
	ToString() string
}

// Parser parses tokens into an AST
type Parser struct {
	tokens []Token
	pos    int
}

// NumberNode represents a numeric literal
type NumberNode struct {
	Value    float64
	Position NodePosition
}

func (n *NumberNode) Eval(ctx EvalContext) (Primitive, error) {
	return n.Value, nil
}

func (n *NumberNode) GetPosition() NodePosition {
	return n.Position
}

func (n *NumberNode) ToString() string {
	// format number without unnecessary decimals
	if n.Value == math.Trunc(n.Value) && math.Abs(n.Value) < 1e15 {
		return strconv.FormatInt(int64(n.Value), 10)
	}
	return strconv.FormatFloat(n.Value, 'g', -1, 64)
}

// CellRefNode represents a single cell reference
type CellRefNode struct {
	Ref      CellRef
	Position NodePosition
}

func (n *CellRefNode) Eval(ctx EvalContext) (Primitive, error) {
	if !ctx.InBounds(n.Ref.Row, n.Ref.Col) {
		return nil, NewSpreadsheetError(ErrorCodeRef, "reference outside the grid: "+n.Ref.String())
	}
	return ctx.CellValue(n.Ref.Row, n.Ref.Col), nil
}

func (n *CellRefNode) GetPosition() NodePosition {
	return n.Position
}

func (n *CellRefNode) ToString() string {
	return n.Ref.String()
}

// RangeNode represents a rectangular range. only valid as a function
// argument.
type RangeNode struct {
	Start    CellRef
	End      CellRef
	Position NodePosition
}

func (n *RangeNode) Eval(ctx EvalContext) (Primitive, error) {
	// normalize the range so start is always less than or equal to end
	startRow := min(n.Start.Row, n.End.Row)
	endRow := max(n.Start.Row, n.End.Row)
	startCol := min(n.Start.Col, n.End.Col)
	endCol := max(n.Start.Col, n.End.Col)

	if !ctx.InBounds(startRow, startCol) || !ctx.InBounds(endRow, endCol) {
		return nil, NewSpreadsheetError(ErrorCodeRef, "range outside the grid: "+n.ToString())
	}

	return &CellRange{
		bounds: RangeAddress{StartRow: startRow, StartColumn: startCol, EndRow: endRow, EndColumn: endCol},
		ctx:    ctx,
	}, nil
}

func (n *RangeNode) GetPosition() NodePosition {
	return n.Position
}

func (n *RangeNode) ToString() string {
	return n.Start.String() + ":" + n.End.String()
}

// RefErrorNode is the literal #REF! left by a collapsed reference
type RefErrorNode struct {
	Position NodePosition
}

func (n *RefErrorNode) Eval(ctx EvalContext) (Primitive, error) {
	return nil, NewSpreadsheetError(ErrorCodeRef, "reference was deleted")
}

func (n *RefErrorNode) GetPosition() NodePosition {
	return n.Position
}

func (n *RefErrorNode) ToString() string {
	return RefErrorMarker
}

// BinaryOpNode represents a binary operation
type BinaryOpNode struct {
	Op       BinaryOp
	Left     ASTNode
	Right    ASTNode
	Position NodePosition
}

func (n *BinaryOpNode) Eval(ctx EvalContext) (Primitive, error) {
	// errors from evaluation are converted to error values
	leftVal, err := n.Left.Eval(ctx)
	if err != nil {
		leftVal = asSpreadsheetError(err)
	}
	rightVal, err := n.Right.Eval(ctx)
	if err != nil {
		rightVal = asSpreadsheetError(err)
	}

	// propagate errors, left first
	if err := checkForError(leftVal); err != nil {
		return err, nil
	}
	if err := checkForError(rightVal); err != nil {
		return err, nil
	}

	leftNum, leftOk := toNumber(leftVal)
	rightNum, rightOk := toNumber(rightVal)
	if !leftOk || !rightOk {
		return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("%s requires numeric values", n.opName()))
	}

	switch n.Op {
	case BinOpAdd:
		return leftNum + rightNum, nil
	case BinOpSubtract:
		return leftNum - rightNum, nil
	case BinOpMultiply:
		return leftNum * rightNum, nil
	case BinOpDivide:
		if rightNum == 0 {
			return nil, NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
		}
		return leftNum / rightNum, nil
	case BinOpPower:
		result := math.Pow(leftNum, rightNum)
		if math.IsNaN(result) || math.IsInf(result, 0) {
			return nil, NewSpreadsheetError(ErrorCodeNum, "Power result is not representable")
		}
		return result, nil
	default:
		return nil, NewSpreadsheetError(ErrorCodeValue, "Unknown operator")
	}
}

func (n *BinaryOpNode) opName() string {
	switch n.Op {
	case BinOpAdd:
		return "Addition"
	case BinOpSubtract:
		return "Subtraction"
	case BinOpMultiply:
		return "Multiplication"
	case BinOpDivide:
		return "Division"
	default:
		return "Power"
	}
}

func (n *BinaryOpNode) GetPosition() NodePosition {
	return n.Position
}

func (n *BinaryOpNode) ToString() string {
	opStr := ""
	switch n.Op {
	case BinOpAdd:
		opStr = "+"
	case BinOpSubtract:
		opStr = "-"
	case BinOpMultiply:
		opStr = "*"
	case BinOpDivide:
		opStr = "/"
	case BinOpPower:
		opStr = "^"
	}
	return fmt.Sprintf("(%s%s%s)", n.Left.ToString(), opStr, n.Right.ToString())
}

// UnaryOpNode represents a unary operation
type UnaryOpNode struct {
	Op       UnaryOp
	Operand  ASTNode
	Position NodePosition
}

func (n *UnaryOpNode) Eval(ctx EvalContext) (Primitive, error) {
	val, err := n.Operand.Eval(ctx)
	if err != nil {
		val = asSpreadsheetError(err)
	}
	if err := checkForError(val); err != nil {
		return err, nil
	}

	num, ok := toNumber(val)
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "Unary operator requires a numeric value")
	}

	switch n.Op {
	case UnaryOpPlus:
		return num, nil
	case UnaryOpMinus:
		return -num, nil
	case UnaryOpPercent:
		return num / 100.0, nil
	default:
		return nil, NewSpreadsheetError(ErrorCodeValue, "Unknown unary operator")
	}
}

func (n *UnaryOpNode) GetPosition() NodePosition {
	return n.Position
}

func (n *UnaryOpNode) ToString() string {
	switch n.Op {
	case UnaryOpMinus:
		return "-" + n.Operand.ToString()
	case UnaryOpPercent:
		return fmt.Sprintf("(%s%%)", n.Operand.ToString())
	default:
		return "+" + n.Operand.ToString()
	}
}

// FunctionCallNode represents a function call
type FunctionCallNode struct {
	Name     string
	Args     []ASTNode
	Position NodePosition
}

func (n *FunctionCallNode) Eval(ctx EvalContext) (Primitive, error) {
	// functions decide how to handle error values in their arguments
	args := make([]any, len(n.Args))
	for i, argNode := range n.Args {
		argVal, err := argNode.Eval(ctx)
		if err != nil {
			args[i] = asSpreadsheetError(err)
		} else {
			args[i] = argVal
		}
	}

	result, err := builtins.Call(n.Name, args...)
	if err != nil {
		return nil, asSpreadsheetError(err)
	}
	return result, nil
}

func (n *FunctionCallNode) GetPosition() NodePosition {
	return n.Position
}

func (n *FunctionCallNode) ToString() string {
	args := make([]string, len(n.Args))
	for i, arg := range n.Args {
		args[i] = arg.ToString()
	}
	return fmt.Sprintf("%s(%s)", n.Name, strings.Join(args, ","))
}

// Parse tokenizes and parses a formula such as "=A1+SUM(B1:B3)"
func Parse(formula string) (ASTNode, error) {
	tokens, lexErrors := NewLexer(formula).Tokenize()
	if len(lexErrors) > 0 {
		return nil, NewSpreadsheetError(ErrorCodeOther, strings.Join(lexErrors, "; "))
	}
	return NewParser(tokens).Parse()
}

// NewParser creates a new parser over the given tokens
func NewParser(tokens []Token) *Parser {
	return &Parser{
		tokens: tokens,
		pos:    0,
	}
}

// Parse parses the tokens into an AST
func (p *Parser) Parse() (ASTNode, error) {
	if len(p.tokens) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeOther, "no tokens to parse")
	}

	if p.tokens[p.pos].Type != TokenEquals {
		return nil, NewSpreadsheetError(ErrorCodeOther, "formula must start with '='")
	}
	p.pos++

	node, err := p.parseAddition()
	if err != nil {
		return nil, err
	}

	// ensure we've consumed all tokens except EOF
	if p.pos < len(p.tokens) && p.tokens[p.pos].Type != TokenEOF {
		return nil, NewSpreadsheetError(ErrorCodeOther, fmt.Sprintf("unexpected token after expression: %s", p.tokens[p.pos].Value))
	}

	return node, nil
}

// parseAddition handles addition and subtraction (lowest precedence)
func (p *Parser) parseAddition() (ASTNode, error) {
	left, err := p.parseMultiplication()
	if err != nil {
		return nil, err
	}

	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		if tok.Type != TokenBinaryOp {
			break
		}

		var op BinaryOp
		switch tok.Value {
		case "+":
			op = BinOpAdd
		case "-":
			op = BinOpSubtract
		default:
			return left, nil
		}

		p.pos++
		right, err := p.parseMultiplication()
		if err != nil {
			return nil, err
		}

		left = &BinaryOpNode{
			Op:       op,
			Left:     left,
			Right:    right,
			Position: NodePosition{Start: left.GetPosition().Start, End: right.GetPosition().End},
		}
	}

	return left, nil
}

// parseMultiplication handles multiplication and division
func (p *Parser) parseMultiplication() (ASTNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		if tok.Type != TokenBinaryOp {
			break
		}

		var op BinaryOp
		switch tok.Value {
		case "*":
			op = BinOpMultiply
		case "/":
			op = BinOpDivide
		default:
			return left, nil
		}

		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		left = &BinaryOpNode{
			Op:       op,
			Left:     left,
			Right:    right,
			Position: NodePosition{Start: left.GetPosition().Start, End: right.GetPosition().End},
		}
	}

	return left, nil
}

// parseUnary handles prefix operators. they bind looser than ^ so that
// -2^2 is -(2^2).
func (p *Parser) parseUnary() (ASTNode, error) {
	if p.pos >= len(p.tokens) {
		return nil, NewSpreadsheetError(ErrorCodeOther, "unexpected end of expression")
	}

	tok := p.tokens[p.pos]
	if tok.Type == TokenUnaryPrefixOp {
		op := UnaryOpPlus
		if tok.Value == "-" {
			op = UnaryOpMinus
		}

		p.pos++
		operand, err := p.parseUnary() // recurse for chained unary operators
		if err != nil {
			return nil, err
		}

		return &UnaryOpNode{
			Op:       op,
			Operand:  operand,
			Position: NodePosition{Start: tok.Pos, End: operand.GetPosition().End},
		}, nil
	}

	return p.parsePower()
}

// parsePower handles exponentiation
func (p *Parser) parsePower() (ASTNode, error) {
	left, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}

	// right-associative
	if p.pos < len(p.tokens) && p.tokens[p.pos].Type == TokenBinaryOp && p.tokens[p.pos].Value == "^" {
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		return &BinaryOpNode{
			Op:       BinOpPower,
			Left:     left,
			Right:    right,
			Position: NodePosition{Start: left.GetPosition().Start, End: right.GetPosition().End},
		}, nil
	}

	return left, nil
}

// parsePostfix handles postfix operators (percent)
func (p *Parser) parsePostfix() (ASTNode, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for p.pos < len(p.tokens) && p.tokens[p.pos].Type == TokenUnaryPostfixOp {
		tok := p.tokens[p.pos]
		p.pos++
		node = &UnaryOpNode{
			Op:       UnaryOpPercent,
			Operand:  node,
			Position: NodePosition{Start: node.GetPosition().Start, End: tok.End},
		}
	}

	return node, nil
}

// parsePrimary handles literals, references, functions and parentheses
func (p *Parser) parsePrimary() (ASTNode, error) {
	if p.pos >= len(p.tokens) {
		return nil, NewSpreadsheetError(ErrorCodeOther, "unexpected end of expression")
	}

	tok := p.tokens[p.pos]

	switch tok.Type {
	case TokenNumber:
		p.pos++
		val, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, NewSpreadsheetError(ErrorCodeOther, fmt.Sprintf("invalid number: %s", tok.Value))
		}
		return &NumberNode{
			Value:    val,
			Position: NodePosition{Start: tok.Pos, End: tok.End},
		}, nil

	case TokenCell:
		p.pos++
		ref, err := ParseCellRef(tok.Value)
		if err != nil {
			return nil, NewSpreadsheetError(ErrorCodeOther, err.Error())
		}
		return &CellRefNode{
			Ref:      ref,
			Position: NodePosition{Start: tok.Pos, End: tok.End},
		}, nil

	case TokenRange:
		return nil, NewSpreadsheetError(ErrorCodeOther, fmt.Sprintf("range %s is only allowed as a function argument", tok.Value))

	case TokenRefError:
		p.pos++
		return &RefErrorNode{Position: NodePosition{Start: tok.Pos, End: tok.End}}, nil

	case TokenFunction:
		return p.parseFunctionCall()

	case TokenLeftParen:
		p.pos++
		node, err := p.parseAddition()
		if err != nil {
			return nil, err
		}

		if p.pos >= len(p.tokens) || p.tokens[p.pos].Type != TokenRightParen {
			return nil, NewSpreadsheetError(ErrorCodeOther, "expected closing parenthesis")
		}
		p.pos++

		return node, nil

	default:
		return nil, NewSpreadsheetError(ErrorCodeOther, fmt.Sprintf("unexpected token: %s", tok.Value))
	}
}

// parseFunctionCall parses a function call
func (p *Parser) parseFunctionCall() (ASTNode, error) {
	funcTok := p.tokens[p.pos]
	p.pos++

	if p.pos >= len(p.tokens) || p.tokens[p.pos].Type != TokenLeftParen {
		return nil, NewSpreadsheetError(ErrorCodeOther, "expected '(' after function name")
	}
	p.pos++

	args := []ASTNode{}

	// empty argument list
	if p.pos < len(p.tokens) && p.tokens[p.pos].Type == TokenRightParen {
		p.pos++
		return &FunctionCallNode{
			Name:     funcTok.Value,
			Args:     args,
			Position: NodePosition{Start: funcTok.Pos, End: p.tokens[p.pos-1].End},
		}, nil
	}

	for {
		arg, err := p.parseArgument()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		if p.pos >= len(p.tokens) {
			return nil, NewSpreadsheetError(ErrorCodeOther, "unexpected end in function arguments")
		}
		if p.tokens[p.pos].Type == TokenRightParen {
			p.pos++
			break
		}
		if p.tokens[p.pos].Type != TokenComma {
			return nil, NewSpreadsheetError(ErrorCodeOther, "expected ',' or ')' in function arguments")
		}
		p.pos++
	}

	return &FunctionCallNode{
		Name:     funcTok.Value,
		Args:     args,
		Position: NodePosition{Start: funcTok.Pos, End: p.tokens[p.pos-1].End},
	}, nil
}

// parseArgument accepts a bare range or any expression
func (p *Parser) parseArgument() (ASTNode, error) {
	tok := p.tokens[p.pos]
	if tok.Type == TokenRange && p.pos+1 < len(p.tokens) {
		next := p.tokens[p.pos+1].Type
		if next != TokenComma && next != TokenRightParen {
			return nil, NewSpreadsheetError(ErrorCodeOther, fmt.Sprintf("range %s cannot be used in an expression", tok.Value))
		}
		p.pos++
		start, end, err := ParseRangeRef(tok.Value)
		if err != nil {
			return nil, NewSpreadsheetError(ErrorCodeOther, err.Error())
		}
		return &RangeNode{
			Start:    start,
			End:      end,
			Position: NodePosition{Start: tok.Pos, End: tok.End},
		}, nil
	}
	return p.parseAddition()
}
