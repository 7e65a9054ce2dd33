package coordination

import "fmt"

const signature = "- Disruptline"

// RenderMessage builds the outreach text for a stakeholder role. Roles
// without a template get a generic request for input.
func RenderMessage(role, summary, caseID string) string {
	switch role {
	case "CHA":
		return fmt.Sprintf(`Disruption Alert #%s

%s

We need your help. Please reply with:
1. Current customs status
2. Officer handling this
3. Expected clearance time

Reply here or update the case directly.
%s`, caseID, summary, signature)
	case "shipping_line":
		return fmt.Sprintf("Case #%s: Need documentation status for %s", caseID, summary)
	case "shipper":
		return fmt.Sprintf(`Urgent: Container Issue #%s

%s

We need corrected documentation. Please check and send ASAP.

Reply here when sent.
%s`, caseID, summary, signature)
	case "port_ops":
		return fmt.Sprintf("Query #%s: %s. Need container location and status. Reply with details.", caseID, summary)
	case "driver":
		return fmt.Sprintf("Case #%s: %s. Share your exact location, vehicle condition and whether the cargo is secure.", caseID, summary)
	case "mechanic":
		return fmt.Sprintf("Case #%s: %s. Need an ETA for on-site repair and whether parts are available.", caseID, summary)
	default:
		return fmt.Sprintf("Case #%s: %s. Need your input.", caseID, summary)
	}
}
