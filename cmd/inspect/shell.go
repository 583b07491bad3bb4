package inspect

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/hitzhangjie/cfidump/pkg/symbol"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"go.uber.org/atomic"
)

const (
	cmdGroupAnnotation = "cmd_group_annotation"

	cmdGroupEntries = "1-entries"
	cmdGroupCode    = "2-code"
	cmdGroupOthers  = "3-other"
	cmdGroupCobra   = "other"

	cmdGroupDelimiter = "-"

	descShort = "cfidump interactive inspection commands"
)

var inspectRootCmd = &cobra.Command{
	Use:   "help [command]",
	Short: descShort,
}

var (
	// CurrentSession is the running inspection session
	CurrentSession *InspectSession

	// Target is the binary whose call frame information is inspected
	Target *symbol.BinaryInfo
)

// cmdSeqNo numbers the executed commands, shown in the prompt
var cmdSeqNo = atomic.NewUint64(0)

// InspectSession drives the interactive browsing of one binary's CFI
type InspectSession struct {
	done  chan bool
	root  *cobra.Command
	liner *liner.State
	last  string

	defers []func()
}

// NewInspectSession creates the interactive session around the inspect commands
func NewInspectSession() *InspectSession {
	fn := func(cmd *cobra.Command, args []string) {
		fmt.Println(cmd.Short)
		fmt.Println()

		fmt.Println(cmd.Use)
		fmt.Println(cmd.Flags().FlagUsages())

		usage := helpMessageByGroups(cmd)
		fmt.Println(usage)
	}
	inspectRootCmd.SetHelpFunc(fn)

	s := &InspectSession{
		done:  make(chan bool),
		root:  inspectRootCmd,
		liner: liner.NewLiner(),
		last:  "",
	}
	CurrentSession = s
	return s
}

func (s *InspectSession) Start() {
	s.liner.SetCompleter(completer)
	s.liner.SetTabCompletionStyle(liner.TabPrints)

	defer func() {
		for idx := len(s.defers) - 1; idx >= 0; idx-- {
			s.defers[idx]()
		}
	}()

	for {
		select {
		case <-s.done:
			s.liner.Close()
			return
		default:
		}

		prompt := fmt.Sprintf("cfidump[%d]> ", cmdSeqNo.Load()+1)
		txt, err := s.liner.Prompt(prompt)
		if err != nil {
			s.liner.Close()
			return
		}

		txt = strings.TrimSpace(txt)
		if len(txt) != 0 {
			s.last = txt
			s.liner.AppendHistory(txt)
		} else {
			txt = s.last
		}
		if len(txt) == 0 {
			continue
		}

		cmdSeqNo.Add(1)
		s.root.SetArgs(strings.Split(txt, " "))
		s.root.Execute()
	}
}

// AtExit registers fn to run when the session terminates
func (s *InspectSession) AtExit(fn func()) *InspectSession {
	s.defers = append(s.defers, fn)
	return s
}

func (s *InspectSession) Stop() {
	close(s.done)
}

func completer(line string) []string {
	cmds := []string{}
	for _, c := range inspectRootCmd.Commands() {
		// complete cmd
		if strings.HasPrefix(c.Use, line) {
			cmds = append(cmds, strings.Split(c.Use, " ")[0])
		}
		// complete cmd's aliases
		for _, alias := range c.Aliases {
			if strings.HasPrefix(alias, line) {
				cmds = append(cmds, alias)
			}
		}
	}
	return cmds
}

// helpMessageByGroups groups the commands and renders the help per group
func helpMessageByGroups(cmd *cobra.Command) string {
	// key:group, val:sorted commands in same group
	groups := map[string][]string{}
	for _, c := range cmd.Commands() {
		// commands without a group annotation go to the other group
		var groupName string
		v, ok := c.Annotations[cmdGroupAnnotation]
		if !ok {
			groupName = "other"
		} else {
			groupName = v
		}

		groupCmds := groups[groupName]
		groupCmds = append(groupCmds, fmt.Sprintf("  %-16s:%s", c.Name(), c.Short))
		sort.Strings(groupCmds)

		groups[groupName] = groupCmds
	}

	if len(groups[cmdGroupCobra]) != 0 {
		groups[cmdGroupOthers] = append(groups[cmdGroupOthers], groups[cmdGroupCobra]...)
	}
	delete(groups, cmdGroupCobra)

	groupNames := []string{}
	for k := range groups {
		groupNames = append(groupNames, k)
	}
	sort.Strings(groupNames)

	buf := bytes.Buffer{}
	for _, groupName := range groupNames {
		commands := groups[groupName]

		group := strings.Split(groupName, cmdGroupDelimiter)[1]
		buf.WriteString(fmt.Sprintf("- [%s]\n", group))

		for _, cmd := range commands {
			buf.WriteString(fmt.Sprintf("%s\n", cmd))
		}
		buf.WriteString("\n")
	}
	return buf.String()
}
