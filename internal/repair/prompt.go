package repair

import (
	"fmt"
	"strings"
)

// wireFormat tells the model how to shape its reply.
const wireFormat = `Reply with exactly one XML document of this shape and nothing else:

<response>
  <explanation>What is wrong and what the steps below change.</explanation>
  <steps>
    <step><type>shell</type><command>a shell command run from the project root</command></step>
    <step><type>file</type><operation>CREATE|UPDATE|DELETE</operation><filename>path/relative/to/root</filename><content><![CDATA[complete new file content]]></content></step>
    <step><type>metadata</type><operation>SET|DELETE</operation><key>name</key><value>value worth remembering about this project</value></step>
  </steps>
</response>

Rules:
- File content is always the complete file, wrapped in CDATA.
- Paths must stay inside the project root.
- Do not start the dev server yourself; it is restarted after the steps succeed.
- Prefer the smallest change that fixes the problem.`

// promptInput is everything one attempt's prompt is built from.
type promptInput struct {
	Trigger        Trigger
	ProjectContext string
	Attempt        int // zero-based
	MaxAttempts    int
	History        []string
}

func buildPrompt(in promptInput) string {
	var b strings.Builder

	b.WriteString("You are repairing a local development server that is supervised by an automated monitor.\n\n")

	b.WriteString("## Project\n")
	b.WriteString(strings.TrimSpace(in.ProjectContext))
	b.WriteString("\n\n")

	switch in.Trigger.Kind {
	case TriggerError:
		b.WriteString("## Detected error\n")
		if in.Trigger.Tag != "" {
			fmt.Fprintf(&b, "Category: %s\n", in.Trigger.Tag)
		}
		fmt.Fprintf(&b, "Line: %s\n\n", in.Trigger.Text)
	case TriggerInstruction:
		b.WriteString("## Operator instruction\n")
		b.WriteString(in.Trigger.Text)
		b.WriteString("\n\n")
	}

	if len(in.Trigger.Images) > 0 {
		b.WriteString("## Attached images\n")
		for _, img := range in.Trigger.Images {
			fmt.Fprintf(&b, "- %s\n", img)
		}
		b.WriteString("\n")
	}

	if ctx := strings.TrimSpace(in.Trigger.Context); ctx != "" {
		b.WriteString("## Recent output\n```\n")
		b.WriteString(ctx)
		b.WriteString("\n```\n\n")
	}

	if len(in.History) > 0 {
		fmt.Fprintf(&b, "## Previous attempts (this is attempt %d of %d)\n", in.Attempt+1, in.MaxAttempts)
		b.WriteString("Earlier fixes for this problem failed. Do not repeat them unchanged.\n\n")
		for i, h := range in.History {
			fmt.Fprintf(&b, "### Attempt %d\n%s\n\n", i+1, strings.TrimSpace(h))
		}
	}

	b.WriteString("## Reply format\n")
	b.WriteString(wireFormat)
	b.WriteString("\n")
	return b.String()
}
