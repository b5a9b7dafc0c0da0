package node

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/numi-chain/numi-core/common"
)

// Console is a minimal line-oriented admin REPL over a Node's engine
// façade, the same role the teacher's console package fills over its
// JavaScript/web3 bridge — reduced here to the handful of commands the C8
// façade actually exposes, since there is no contract VM to script against
// (spec.md §1 names contract execution a non-goal).
type Console struct {
	node *Node
	line *liner.State
	out  io.Writer
}

// NewConsole wires a Console over node, reading from stdin via liner (the
// same library the teacher's console.Console uses for its prompt, history,
// and line editing).
func NewConsole(node *Node, out io.Writer) *Console {
	l := liner.NewLiner()
	l.SetCtrlCAborts(true)
	return &Console{node: node, line: l, out: out}
}

func (c *Console) Close() error { return c.line.Close() }

// Run reads commands until EOF, Ctrl-D, or "exit".
func (c *Console) Run() {
	for {
		input, err := c.line.Prompt("numi> ")
		if err != nil {
			return
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		c.line.AppendHistory(input)
		if input == "exit" || input == "quit" {
			return
		}
		c.dispatch(input)
	}
}

func (c *Console) dispatch(input string) {
	fields := strings.Fields(input)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "status":
		c.status()
	case "balance":
		c.balance(args)
	case "block":
		c.block(args)
	case "mine":
		c.mine(args)
	default:
		fmt.Fprintf(c.out, "unknown command %q (status|balance|block|mine)\n", cmd)
	}
}

func (c *Console) status() {
	state := c.node.Engine().GetChainState()
	fmt.Fprintf(c.out, "tip=%s height=%d difficulty=%d finalized=%d mem=%s\n",
		state.TipHash, state.TipHeight, state.CurrentDifficulty, state.FinalizedHeight, state.Diagnostics.Report)
}

func (c *Console) balance(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "usage: balance <hex-public-key>")
		return
	}
	raw, err := hex.DecodeString(args[0])
	if err != nil {
		fmt.Fprintln(c.out, "error:", err)
		return
	}
	account, err := c.node.Engine().GetAccount(common.PubKey(raw))
	if err != nil {
		fmt.Fprintln(c.out, "error:", err)
		return
	}
	fmt.Fprintf(c.out, "balance=%d nonce=%d\n", account.Balance, account.Nonce)
}

func (c *Console) block(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "usage: block <height-or-hash>")
		return
	}
	if height, err := strconv.ParseUint(args[0], 10, 64); err == nil {
		block, err := c.node.Engine().GetBlockByHeight(height)
		if err != nil {
			fmt.Fprintln(c.out, "error:", err)
			return
		}
		fmt.Fprintf(c.out, "%+v\n", block.Header)
		return
	}
	raw, err := hex.DecodeString(args[0])
	if err != nil || len(raw) != common.HashLength {
		fmt.Fprintln(c.out, "usage: block <height-or-hash>")
		return
	}
	var hash common.Hash
	copy(hash[:], raw)
	block, err := c.node.Engine().GetBlockByHash(hash)
	if err != nil {
		fmt.Fprintln(c.out, "error:", err)
		return
	}
	fmt.Fprintf(c.out, "%+v\n", block.Header)
}

// mine does not mine from the console: it prints a pointer to the REST
// POST /mine admin endpoint and to the EnableMining node setting.
func (c *Console) mine(args []string) {
	fmt.Fprintln(c.out, "use the REST POST /mine endpoint, or enable EnableMining in the node config for continuous mining")
}
