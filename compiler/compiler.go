package compiler

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/chazu/coxy/vm"
)

// ---------------------------------------------------------------------------
// Compiler: single-pass Pratt compiler from source to bytecode
// ---------------------------------------------------------------------------

const (
	maxLocals    = 256
	maxUpvalues  = 256
	maxArguments = 255
)

// Error is a single compile error.
type Error struct {
	Line    int
	Where   string // " at 'x'", " at end", or empty
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("[line %d] Error%s: %s", e.Line, e.Where, e.Message)
}

// ErrorList collects every error reported while compiling one source.
type ErrorList []*Error

func (l ErrorList) Error() string {
	msgs := make([]string, len(l))
	for i, e := range l {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

// FunctionKind distinguishes the bodies the compiler can be inside.
type FunctionKind int

const (
	KindFunction FunctionKind = iota
	KindInitializer
	KindMethod
	KindScript
)

type precedence int

const (
	precNone precedence = iota
	precAssignment
	precOr
	precAnd
	precEquality
	precComparison
	precTerm
	precFactor
	precUnary
	precCall
	precPrimary
)

type parseFn func(p *parser, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

var rules [tokenTypeCount]parseRule

func init() {
	rules[TokenLeftParen] = parseRule{(*parser).grouping, (*parser).call, precCall}
	rules[TokenDot] = parseRule{nil, (*parser).dot, precCall}
	rules[TokenMinus] = parseRule{(*parser).unary, (*parser).binary, precTerm}
	rules[TokenPlus] = parseRule{nil, (*parser).binary, precTerm}
	rules[TokenSlash] = parseRule{nil, (*parser).binary, precFactor}
	rules[TokenStar] = parseRule{nil, (*parser).binary, precFactor}
	rules[TokenBang] = parseRule{(*parser).unary, nil, precNone}
	rules[TokenBangEqual] = parseRule{nil, (*parser).binary, precEquality}
	rules[TokenEqualEqual] = parseRule{nil, (*parser).binary, precEquality}
	rules[TokenGreater] = parseRule{nil, (*parser).binary, precComparison}
	rules[TokenGreaterEqual] = parseRule{nil, (*parser).binary, precComparison}
	rules[TokenLess] = parseRule{nil, (*parser).binary, precComparison}
	rules[TokenLessEqual] = parseRule{nil, (*parser).binary, precComparison}
	rules[TokenIdentifier] = parseRule{(*parser).variable, nil, precNone}
	rules[TokenString] = parseRule{(*parser).str, nil, precNone}
	rules[TokenNumber] = parseRule{(*parser).number, nil, precNone}
	rules[TokenAnd] = parseRule{nil, (*parser).and, precAnd}
	rules[TokenOr] = parseRule{nil, (*parser).or, precOr}
	rules[TokenFalse] = parseRule{(*parser).literal, nil, precNone}
	rules[TokenNil] = parseRule{(*parser).literal, nil, precNone}
	rules[TokenTrue] = parseRule{(*parser).literal, nil, precNone}
	rules[TokenSuper] = parseRule{(*parser).super, nil, precNone}
	rules[TokenThis] = parseRule{(*parser).this, nil, precNone}
}

type local struct {
	name       string
	depth      int // -1 while the initializer is being compiled
	isCaptured bool
}

type upvalue struct {
	index   byte
	isLocal bool
}

// funcState is the per-function compilation state. States form a chain
// through enclosing, innermost first.
type funcState struct {
	enclosing  *funcState
	function   *vm.ObjFunction
	kind       FunctionKind
	locals     []local
	upvalues   []upvalue
	scopeDepth int

	// identifiers dedupes name constants within one chunk.
	identifiers map[string]byte
}

type classState struct {
	enclosing     *classState
	hasSuperclass bool
}

type parser struct {
	heap     *vm.Heap
	lexer    *Lexer
	current  Token
	previous Token

	panicMode bool
	errors    ErrorList

	fs    *funcState
	class *classState
}

// Compile compiles source into the top-level script function. Every object
// the compiler creates lives on h; functions under construction are kept
// alive as roots, and the heap may collect between declarations.
func Compile(h *vm.Heap, source string) (*vm.ObjFunction, error) {
	p := &parser{heap: h, lexer: NewLexer(source)}
	h.AddRoots(p)
	defer h.RemoveRoots(p)

	p.beginFunction(KindScript)
	p.advance()
	for !p.match(TokenEOF) {
		p.declaration()
	}
	fn := p.endFunction()

	if len(p.errors) > 0 {
		return nil, p.errors
	}
	return fn, nil
}

// MarkRoots marks every function still being compiled.
func (p *parser) MarkRoots(h *vm.Heap) {
	for fs := p.fs; fs != nil; fs = fs.enclosing {
		h.MarkObject(fs.function)
	}
}

// ---------------------------------------------------------------------------
// Token handling and errors
// ---------------------------------------------------------------------------

func (p *parser) advance() {
	p.previous = p.current
	for {
		p.current = p.lexer.NextToken()
		if p.current.Type != TokenError {
			return
		}
		p.errorAtCurrent(p.current.Lexeme)
	}
}

func (p *parser) consume(t TokenType, message string) {
	if p.current.Type == t {
		p.advance()
		return
	}
	p.errorAtCurrent(message)
}

func (p *parser) check(t TokenType) bool {
	return p.current.Type == t
}

func (p *parser) match(t TokenType) bool {
	if !p.check(t) {
		return false
	}
	p.advance()
	return true
}

func (p *parser) error(message string) {
	p.errorAt(p.previous, message)
}

func (p *parser) errorAtCurrent(message string) {
	p.errorAt(p.current, message)
}

// errorAt records an error unless one is already being reported for the
// current statement.
func (p *parser) errorAt(tok Token, message string) {
	if p.panicMode {
		return
	}
	p.panicMode = true

	var where string
	switch tok.Type {
	case TokenEOF:
		where = " at end"
	case TokenError:
	default:
		where = fmt.Sprintf(" at '%s'", tok.Lexeme)
	}
	p.errors = append(p.errors, &Error{Line: tok.Line, Where: where, Message: message})
}

// synchronize skips tokens until a likely statement boundary.
func (p *parser) synchronize() {
	p.panicMode = false
	for p.current.Type != TokenEOF {
		if p.previous.Type == TokenSemicolon {
			return
		}
		switch p.current.Type {
		case TokenClass, TokenFun, TokenVar, TokenFor, TokenIf,
			TokenWhile, TokenPrint, TokenReturn:
			return
		}
		p.advance()
	}
}

// ---------------------------------------------------------------------------
// Emission
// ---------------------------------------------------------------------------

func (p *parser) chunk() *vm.Chunk {
	return &p.fs.function.Chunk
}

func (p *parser) emitByte(b byte) {
	p.chunk().Write(b, p.previous.Line)
}

func (p *parser) emitOp(op vm.Opcode) {
	p.chunk().WriteOp(op, p.previous.Line)
}

func (p *parser) emitOpArg(op vm.Opcode, arg byte) {
	p.emitOp(op)
	p.emitByte(arg)
}

func (p *parser) emitLoop(loopStart int) {
	p.emitOp(vm.OpLoop)
	offset := p.chunk().Len() - loopStart + 2
	if offset > math.MaxUint16 {
		p.error("Loop body too large.")
	}
	p.emitByte(byte(offset >> 8))
	p.emitByte(byte(offset))
}

func (p *parser) emitJump(op vm.Opcode) int {
	p.emitOp(op)
	p.emitByte(0xff)
	p.emitByte(0xff)
	return p.chunk().Len() - 2
}

func (p *parser) patchJump(offset int) {
	code := p.chunk().Code
	jump := len(code) - offset - 2
	if jump > math.MaxUint16 {
		p.error("Too much code to jump over.")
	}
	code[offset] = byte(jump >> 8)
	code[offset+1] = byte(jump)
}

func (p *parser) emitReturn() {
	if p.fs.kind == KindInitializer {
		p.emitOpArg(vm.OpGetLocal, 0)
	} else {
		p.emitOp(vm.OpNil)
	}
	p.emitOp(vm.OpReturn)
}

// makeConstant adds v to the pool for an instruction with a one-byte operand.
func (p *parser) makeConstant(v vm.Value) byte {
	idx := p.chunk().AddConstant(v)
	if idx > vm.MaxShortConstant {
		p.error("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

func (p *parser) emitConstant(v vm.Value) {
	if p.chunk().WriteConstant(v, p.previous.Line) < 0 {
		p.error("Too many constants in one chunk.")
	}
}

func (p *parser) identifierConstant(name string) byte {
	if idx, ok := p.fs.identifiers[name]; ok {
		return idx
	}
	idx := p.makeConstant(p.heap.InternString(name).Value())
	p.fs.identifiers[name] = idx
	return idx
}

// ---------------------------------------------------------------------------
// Functions and scopes
// ---------------------------------------------------------------------------

func (p *parser) beginFunction(kind FunctionKind) {
	fs := &funcState{
		enclosing:   p.fs,
		kind:        kind,
		locals:      make([]local, 0, 8),
		identifiers: make(map[string]byte),
	}
	fs.function = p.heap.NewFunction()
	p.fs = fs
	if kind != KindScript {
		fs.function.Name = p.heap.InternString(p.previous.Lexeme)
	}

	// Slot zero holds the callee, or the receiver inside methods.
	slotZero := ""
	if kind == KindMethod || kind == KindInitializer {
		slotZero = "this"
	}
	fs.locals = append(fs.locals, local{name: slotZero})
}

func (p *parser) endFunction() *vm.ObjFunction {
	p.emitReturn()
	fn := p.fs.function
	p.fs = p.fs.enclosing
	return fn
}

func (p *parser) beginScope() {
	p.fs.scopeDepth++
}

func (p *parser) endScope() {
	fs := p.fs
	fs.scopeDepth--
	for len(fs.locals) > 0 && fs.locals[len(fs.locals)-1].depth > fs.scopeDepth {
		if fs.locals[len(fs.locals)-1].isCaptured {
			p.emitOp(vm.OpCloseUpvalue)
		} else {
			p.emitOp(vm.OpPop)
		}
		fs.locals = fs.locals[:len(fs.locals)-1]
	}
}

func (p *parser) addLocal(name string) {
	if len(p.fs.locals) == maxLocals {
		p.error("Too many local variables in function.")
		return
	}
	p.fs.locals = append(p.fs.locals, local{name: name, depth: -1})
}

func (p *parser) declareVariable() {
	fs := p.fs
	if fs.scopeDepth == 0 {
		return
	}
	name := p.previous.Lexeme
	for i := len(fs.locals) - 1; i >= 0; i-- {
		l := fs.locals[i]
		if l.depth != -1 && l.depth < fs.scopeDepth {
			break
		}
		if l.name == name {
			p.error("Already a variable with this name in this scope.")
		}
	}
	p.addLocal(name)
}

func (p *parser) parseVariable(message string) byte {
	p.consume(TokenIdentifier, message)
	p.declareVariable()
	if p.fs.scopeDepth > 0 {
		return 0
	}
	return p.identifierConstant(p.previous.Lexeme)
}

func (p *parser) markInitialized() {
	if p.fs.scopeDepth == 0 {
		return
	}
	p.fs.locals[len(p.fs.locals)-1].depth = p.fs.scopeDepth
}

func (p *parser) defineVariable(global byte) {
	if p.fs.scopeDepth > 0 {
		p.markInitialized()
		return
	}
	p.emitOpArg(vm.OpDefineGlobal, global)
}

func (p *parser) resolveLocal(fs *funcState, name string) int {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			if fs.locals[i].depth == -1 {
				p.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

func (p *parser) addUpvalue(fs *funcState, index byte, isLocal bool) int {
	for i, u := range fs.upvalues {
		if u.index == index && u.isLocal == isLocal {
			return i
		}
	}
	if len(fs.upvalues) == maxUpvalues {
		p.error("Too many closure variables in function.")
		return 0
	}
	fs.upvalues = append(fs.upvalues, upvalue{index: index, isLocal: isLocal})
	fs.function.UpvalueCount = len(fs.upvalues)
	return len(fs.upvalues) - 1
}

func (p *parser) resolveUpvalue(fs *funcState, name string) int {
	if fs.enclosing == nil {
		return -1
	}
	if local := p.resolveLocal(fs.enclosing, name); local != -1 {
		fs.enclosing.locals[local].isCaptured = true
		return p.addUpvalue(fs, byte(local), true)
	}
	if up := p.resolveUpvalue(fs.enclosing, name); up != -1 {
		return p.addUpvalue(fs, byte(up), false)
	}
	return -1
}

// ---------------------------------------------------------------------------
// Declarations and statements
// ---------------------------------------------------------------------------

func (p *parser) declaration() {
	switch {
	case p.match(TokenClass):
		p.classDeclaration()
	case p.match(TokenFun):
		p.funDeclaration()
	case p.match(TokenVar):
		p.varDeclaration()
	default:
		p.statement()
	}
	if p.panicMode {
		p.synchronize()
	}
	// Everything allocated so far is reachable from the functions on
	// the compile chain.
	p.heap.Safepoint()
}

func (p *parser) classDeclaration() {
	p.consume(TokenIdentifier, "Expect class name.")
	className := p.previous.Lexeme
	nameConstant := p.identifierConstant(className)
	p.declareVariable()

	p.emitOpArg(vm.OpClass, nameConstant)
	p.defineVariable(nameConstant)

	cs := &classState{enclosing: p.class}
	p.class = cs

	if p.match(TokenLess) {
		p.consume(TokenIdentifier, "Expect superclass name.")
		p.variable(false)
		if p.previous.Lexeme == className {
			p.error("A class can't inherit from itself.")
		}

		p.beginScope()
		p.addLocal("super")
		p.defineVariable(0)

		p.namedVariable(className, false)
		p.emitOp(vm.OpInherit)
		cs.hasSuperclass = true
	}

	p.namedVariable(className, false)
	p.consume(TokenLeftBrace, "Expect '{' before class body.")
	for !p.check(TokenRightBrace) && !p.check(TokenEOF) {
		p.method()
	}
	p.consume(TokenRightBrace, "Expect '}' after class body.")
	p.emitOp(vm.OpPop)

	if cs.hasSuperclass {
		p.endScope()
	}
	p.class = cs.enclosing
}

func (p *parser) method() {
	p.consume(TokenIdentifier, "Expect method name.")
	constant := p.identifierConstant(p.previous.Lexeme)
	kind := KindMethod
	if p.previous.Lexeme == "init" {
		kind = KindInitializer
	}
	p.function(kind)
	p.emitOpArg(vm.OpMethod, constant)
}

func (p *parser) funDeclaration() {
	global := p.parseVariable("Expect function name.")
	p.markInitialized()
	p.function(KindFunction)
	p.defineVariable(global)
}

func (p *parser) function(kind FunctionKind) {
	p.beginFunction(kind)
	p.beginScope()

	p.consume(TokenLeftParen, "Expect '(' after function name.")
	if !p.check(TokenRightParen) {
		for {
			p.fs.function.Arity++
			if p.fs.function.Arity > maxArguments {
				p.errorAtCurrent("Can't have more than 255 parameters.")
			}
			constant := p.parseVariable("Expect parameter name.")
			p.defineVariable(constant)
			if !p.match(TokenComma) {
				break
			}
		}
	}
	p.consume(TokenRightParen, "Expect ')' after parameters.")
	p.consume(TokenLeftBrace, "Expect '{' before function body.")
	p.block()

	upvalues := p.fs.upvalues
	fn := p.endFunction()
	p.emitOpArg(vm.OpClosure, p.makeConstant(fn.Value()))
	for _, u := range upvalues {
		if u.isLocal {
			p.emitByte(1)
		} else {
			p.emitByte(0)
		}
		p.emitByte(u.index)
	}
}

func (p *parser) varDeclaration() {
	global := p.parseVariable("Expect variable name.")
	if p.match(TokenEqual) {
		p.expression()
	} else {
		p.emitOp(vm.OpNil)
	}
	p.consume(TokenSemicolon, "Expect ';' after variable declaration.")
	p.defineVariable(global)
}

func (p *parser) statement() {
	switch {
	case p.match(TokenPrint):
		p.printStatement()
	case p.match(TokenFor):
		p.forStatement()
	case p.match(TokenIf):
		p.ifStatement()
	case p.match(TokenReturn):
		p.returnStatement()
	case p.match(TokenWhile):
		p.whileStatement()
	case p.match(TokenLeftBrace):
		p.beginScope()
		p.block()
		p.endScope()
	default:
		p.expressionStatement()
	}
}

func (p *parser) block() {
	for !p.check(TokenRightBrace) && !p.check(TokenEOF) {
		p.declaration()
	}
	p.consume(TokenRightBrace, "Expect '}' after block.")
}

func (p *parser) printStatement() {
	p.expression()
	p.consume(TokenSemicolon, "Expect ';' after value.")
	p.emitOp(vm.OpPrint)
}

func (p *parser) expressionStatement() {
	p.expression()
	p.consume(TokenSemicolon, "Expect ';' after expression.")
	p.emitOp(vm.OpPop)
}

func (p *parser) returnStatement() {
	if p.fs.kind == KindScript {
		p.error("Can't return from top-level code.")
	}
	if p.match(TokenSemicolon) {
		p.emitReturn()
		return
	}
	if p.fs.kind == KindInitializer {
		p.error("Can't return a value from an initializer.")
	}
	p.expression()
	p.consume(TokenSemicolon, "Expect ';' after return value.")
	p.emitOp(vm.OpReturn)
}

func (p *parser) ifStatement() {
	p.consume(TokenLeftParen, "Expect '(' after 'if'.")
	p.expression()
	p.consume(TokenRightParen, "Expect ')' after condition.")

	thenJump := p.emitJump(vm.OpJumpIfFalse)
	p.emitOp(vm.OpPop)
	p.statement()

	elseJump := p.emitJump(vm.OpJump)
	p.patchJump(thenJump)
	p.emitOp(vm.OpPop)

	if p.match(TokenElse) {
		p.statement()
	}
	p.patchJump(elseJump)
}

func (p *parser) whileStatement() {
	loopStart := p.chunk().Len()
	p.consume(TokenLeftParen, "Expect '(' after 'while'.")
	p.expression()
	p.consume(TokenRightParen, "Expect ')' after condition.")

	exitJump := p.emitJump(vm.OpJumpIfFalse)
	p.emitOp(vm.OpPop)
	p.statement()
	p.emitLoop(loopStart)

	p.patchJump(exitJump)
	p.emitOp(vm.OpPop)
}

func (p *parser) forStatement() {
	p.beginScope()
	p.consume(TokenLeftParen, "Expect '(' after 'for'.")
	switch {
	case p.match(TokenSemicolon):
	case p.match(TokenVar):
		p.varDeclaration()
	default:
		p.expressionStatement()
	}

	loopStart := p.chunk().Len()
	exitJump := -1
	if !p.match(TokenSemicolon) {
		p.expression()
		p.consume(TokenSemicolon, "Expect ';' after loop condition.")
		exitJump = p.emitJump(vm.OpJumpIfFalse)
		p.emitOp(vm.OpPop)
	}

	if !p.match(TokenRightParen) {
		bodyJump := p.emitJump(vm.OpJump)
		incrementStart := p.chunk().Len()
		p.expression()
		p.emitOp(vm.OpPop)
		p.consume(TokenRightParen, "Expect ')' after for clauses.")

		p.emitLoop(loopStart)
		loopStart = incrementStart
		p.patchJump(bodyJump)
	}

	p.statement()
	p.emitLoop(loopStart)

	if exitJump != -1 {
		p.patchJump(exitJump)
		p.emitOp(vm.OpPop)
	}
	p.endScope()
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (p *parser) expression() {
	p.parsePrecedence(precAssignment)
}

func (p *parser) parsePrecedence(prec precedence) {
	p.advance()
	prefix := rules[p.previous.Type].prefix
	if prefix == nil {
		p.error("Expect expression.")
		return
	}

	canAssign := prec <= precAssignment
	prefix(p, canAssign)

	for prec <= rules[p.current.Type].precedence {
		p.advance()
		rules[p.previous.Type].infix(p, canAssign)
	}

	if canAssign && p.match(TokenEqual) {
		p.error("Invalid assignment target.")
	}
}

func (p *parser) number(bool) {
	value, err := strconv.ParseFloat(p.previous.Lexeme, 64)
	if err != nil {
		p.error("Invalid number literal.")
		return
	}
	p.emitConstant(vm.Number(value))
}

func (p *parser) str(bool) {
	lexeme := p.previous.Lexeme
	s := p.heap.InternString(lexeme[1 : len(lexeme)-1])
	p.emitConstant(s.Value())
}

func (p *parser) literal(bool) {
	switch p.previous.Type {
	case TokenFalse:
		p.emitOp(vm.OpFalse)
	case TokenNil:
		p.emitOp(vm.OpNil)
	case TokenTrue:
		p.emitOp(vm.OpTrue)
	}
}

func (p *parser) grouping(bool) {
	p.expression()
	p.consume(TokenRightParen, "Expect ')' after expression.")
}

func (p *parser) unary(bool) {
	op := p.previous.Type
	p.parsePrecedence(precUnary)
	switch op {
	case TokenBang:
		p.emitOp(vm.OpNot)
	case TokenMinus:
		p.emitOp(vm.OpNegate)
	}
}

func (p *parser) binary(bool) {
	op := p.previous.Type
	p.parsePrecedence(rules[op].precedence + 1)

	switch op {
	case TokenBangEqual:
		p.emitOp(vm.OpEqual)
		p.emitOp(vm.OpNot)
	case TokenEqualEqual:
		p.emitOp(vm.OpEqual)
	case TokenGreater:
		p.emitOp(vm.OpGreater)
	case TokenGreaterEqual:
		p.emitOp(vm.OpLess)
		p.emitOp(vm.OpNot)
	case TokenLess:
		p.emitOp(vm.OpLess)
	case TokenLessEqual:
		p.emitOp(vm.OpGreater)
		p.emitOp(vm.OpNot)
	case TokenPlus:
		p.emitOp(vm.OpAdd)
	case TokenMinus:
		p.emitOp(vm.OpSubtract)
	case TokenStar:
		p.emitOp(vm.OpMultiply)
	case TokenSlash:
		p.emitOp(vm.OpDivide)
	}
}

func (p *parser) and(bool) {
	endJump := p.emitJump(vm.OpJumpIfFalse)
	p.emitOp(vm.OpPop)
	p.parsePrecedence(precAnd)
	p.patchJump(endJump)
}

func (p *parser) or(bool) {
	elseJump := p.emitJump(vm.OpJumpIfFalse)
	endJump := p.emitJump(vm.OpJump)
	p.patchJump(elseJump)
	p.emitOp(vm.OpPop)
	p.parsePrecedence(precOr)
	p.patchJump(endJump)
}

func (p *parser) call(bool) {
	argCount := p.argumentList()
	p.emitOpArg(vm.OpCall, argCount)
}

func (p *parser) argumentList() byte {
	argCount := 0
	if !p.check(TokenRightParen) {
		for {
			p.expression()
			if argCount == maxArguments {
				p.error("Can't have more than 255 arguments.")
			}
			argCount++
			if !p.match(TokenComma) {
				break
			}
		}
	}
	p.consume(TokenRightParen, "Expect ')' after arguments.")
	return byte(argCount)
}

func (p *parser) dot(canAssign bool) {
	p.consume(TokenIdentifier, "Expect property name after '.'.")
	name := p.identifierConstant(p.previous.Lexeme)

	switch {
	case canAssign && p.match(TokenEqual):
		p.expression()
		p.emitOpArg(vm.OpSetProperty, name)
	case p.match(TokenLeftParen):
		argCount := p.argumentList()
		p.emitOpArg(vm.OpInvoke, name)
		p.emitByte(argCount)
	default:
		p.emitOpArg(vm.OpGetProperty, name)
	}
}

func (p *parser) variable(canAssign bool) {
	p.namedVariable(p.previous.Lexeme, canAssign)
}

func (p *parser) namedVariable(name string, canAssign bool) {
	var getOp, setOp vm.Opcode
	arg := p.resolveLocal(p.fs, name)
	switch {
	case arg != -1:
		getOp, setOp = vm.OpGetLocal, vm.OpSetLocal
	default:
		if arg = p.resolveUpvalue(p.fs, name); arg != -1 {
			getOp, setOp = vm.OpGetUpvalue, vm.OpSetUpvalue
		} else {
			arg = int(p.identifierConstant(name))
			getOp, setOp = vm.OpGetGlobal, vm.OpSetGlobal
		}
	}

	if canAssign && p.match(TokenEqual) {
		p.expression()
		p.emitOpArg(setOp, byte(arg))
	} else {
		p.emitOpArg(getOp, byte(arg))
	}
}

func (p *parser) this(bool) {
	if p.class == nil {
		p.error("Can't use 'this' outside of a class.")
		return
	}
	p.variable(false)
}

func (p *parser) super(bool) {
	switch {
	case p.class == nil:
		p.error("Can't use 'super' outside of a class.")
	case !p.class.hasSuperclass:
		p.error("Can't use 'super' in a class with no superclass.")
	}

	p.consume(TokenDot, "Expect '.' after 'super'.")
	p.consume(TokenIdentifier, "Expect superclass method name.")
	name := p.identifierConstant(p.previous.Lexeme)

	p.namedVariable("this", false)
	if p.match(TokenLeftParen) {
		argCount := p.argumentList()
		p.namedVariable("super", false)
		p.emitOpArg(vm.OpSuperInvoke, name)
		p.emitByte(argCount)
		return
	}
	p.namedVariable("super", false)
	p.emitOpArg(vm.OpGetSuper, name)
}
