package ai

import (
	"fmt"
	"strings"
)

// ClassifySystem frames the intent-classification call.
const ClassifySystem = `You are an expert in natural language processing.
Your task is to analyze the user's question and determine whether it pertains to a specific project, employee, or a time-related aspect (Year, Month, Day, or Date).
You will also extract the relevant project name or employee name from the question, as well as any time-related information if applicable.
Return valid JSON matching the required schema.`

// BuildClassifyPrompt asks which canned analysis a question belongs to.
func BuildClassifyPrompt(question string) string {
	return fmt.Sprintf(`Analyze the following question to determine if it pertains to Project Analysis, Employee Analysis, or Time Analysis, and extract the relevant details:
Question: %s

Available Analysis Types:
1. Project Analysis - Choose this if the question is related to a specific project.
2. Employee Analysis - Choose this if the question is related to a specific employee.
3. Time Analysis - Choose this if the question is related to a specific time period, date, day, month, year or a phrase related to the calendar.

Please provide:
- The analysis type selected (Project Analysis, Employee Analysis, or Time Analysis).
- The extracted name (project name or employee name, if applicable).
- Any specific time-related information (Year, Month, Day, or Date) if mentioned in the question.`, question)
}

// FilterSystem frames the filter-synthesis call. The model describes a
// filter as data; it is never asked for, nor allowed to return, executable
// code.
const FilterSystem = `You are an expert in data filtering.
Your task is to understand the user's question and describe, as a JSON object, which timesheet rows are relevant to it.
A filter is a tree of conditions. Leaf conditions compare one column to a value with one of the operators: eq, ne, contains, gt, ge, lt, le. Branch conditions combine child filters with and, or, not.
Use "contains" for name matching — it is case-insensitive. Only reference columns from the provided column list.
On branch conditions set "column" and "value" to null; on leaf conditions set "args" to null.
If every row is relevant, return {"filter": null}.
Return valid JSON matching the required schema and nothing else.`

// FilterSchema constrains the filter-synthesis reply. Written out by hand
// because the node type is recursive. Strict structured outputs demand that
// every declared property be required, so the optional leaf/branch fields
// are nullable instead of omittable.
const FilterSchema = `{
  "type": "object",
  "properties": {
    "filter": {
      "anyOf": [
        {"type": "null"},
        {"$ref": "#/$defs/node"}
      ]
    }
  },
  "required": ["filter"],
  "additionalProperties": false,
  "$defs": {
    "node": {
      "type": "object",
      "properties": {
        "op": {
          "type": "string",
          "enum": ["and", "or", "not", "eq", "ne", "contains", "gt", "ge", "lt", "le"]
        },
        "column": {"type": ["string", "null"]},
        "value": {"type": ["string", "null"]},
        "args": {
          "anyOf": [
            {"type": "array", "items": {"$ref": "#/$defs/node"}},
            {"type": "null"}
          ]
        }
      },
      "required": ["op", "column", "value", "args"],
      "additionalProperties": false
    }
  }
}`

// BuildFilterPrompt asks for a row filter for one chunk of the dataset
// preview.
func BuildFilterPrompt(question string, columns []string, chunk string) string {
	return fmt.Sprintf(`Describe the filter condition that selects the timesheet rows relevant to the user question:
Question: %s

Available columns: %s

Data preview:
%s`, question, strings.Join(columns, ", "), chunk)
}

// AnalystSystem frames every analysis job.
const AnalystSystem = `You are an expert data analyst specializing in timesheet analysis.
Your goal is to provide valuable insights about employee workload, project distribution, and time management patterns.
Ensure all calculations are accurate and precise, matching the actual data values.`

// BuildProjectAnalysisPrompt carries the project analyst's focus areas.
func BuildProjectAnalysisPrompt(projectName, chunk string) string {
	return fmt.Sprintf(`Analyze the timesheet data for project '%s':
%s

Note:
- Ensure calculations are accurate, especially for summing hours worked.
- Check that 'ActualTimeSpent' has accurate floating-point values.

Focus on:
1. Total hours spent on the project.
2. Monthly hours breakdown.
3. Total hours by each employee.
4. Major tasks performed by employees.
5. Project start date for timesheet entries.
6. Average hours worked per day, week, and month.
7. Employee contribution distribution.
8. Daily and weekly work patterns.
9. Resource utilization trends.
10. Identify peak activity periods.

Produce a detailed project analysis report with HTML output containing:
- Total hours summary
- Monthly hours breakdown
- Employee hours contributions
- Major tasks performed
- Start date for timesheet entries
- Average hours per day, week, and month
- Resource allocation breakdown
- Work patterns
- Utilization metrics
- Key findings and recommendations`, projectName, chunk)
}

// BuildEmployeeAnalysisPrompt carries the employee analyst's focus areas.
func BuildEmployeeAnalysisPrompt(employeeName, chunk string) string {
	return fmt.Sprintf(`Analyze the timesheet data for employee '%s':

**Data:** %s

**Important Notes:**
- All calculations must be precise. Ensure that the 'ActualTimeSpent' column correctly includes floating-point values, as in the following example: 2.0 + 2.5 + 1.5 should equal 6.
- When grouping employee data by hours, accuracy is crucial. Confirm that hours are summed correctly across different timeframes and tasks to avoid misrepresentation of total work hours.

**Focus Areas:**
1. Calculate the total hours worked overall by the employee with detail to precision.
2. Provide a year-wise breakdown of total hours worked, ensuring correct calculations.
3. Include a month-wise breakdown of total hours worked, verifying each entry is aggregated correctly.
4. Analyze total hours worked on a project-wise basis, accounting for all related tasks.
5. Identify both major and minor tasks the employee has worked on, ensuring clarity on each.
6. Explore daily and weekly work patterns to identify potential anomalies.
7. Assess workload balance across projects to ensure fair distribution of hours.
8. Identify peak activity periods based on timesheet data with accurate grouping.
9. Evaluate resource utilization trends throughout the work period and highlight any discrepancies.
10. Examine the employee's contributions and involvement in various projects, ensuring all entries are accounted for appropriately.

Produce a comprehensive employee analysis report with HTML output containing:
- Total hours worked in aggregate, with accurate calculations.
- Yearly and monthly breakdown of hours worked.
- Time allocations specific to each project.
- Insights on major and minor tasks performed.
- Detailed analysis of work patterns and trends.
- Distribution and balance of workload across tasks.
- Key observations and actionable recommendations.`, employeeName, chunk)
}

// BuildGeneralAnalysisPrompt carries the general analyst's focus areas.
func BuildGeneralAnalysisPrompt(chunk string) string {
	return fmt.Sprintf(`Analyze the following timesheet data to identify key patterns:
%s

Focus on:
1. Total hours spent this month
2. Employee-wise workload distribution
3. Daily trends in hours logged
4. Project-wise time allocation

Produce a detailed analysis report with HTML output containing:
- Total hours calculation
- Employee workload breakdown
- Daily trend analysis
- Project distribution metrics
- Identified patterns and anomalies`, chunk)
}

// ReportSystem frames the terminal compose-report job.
const ReportSystem = `You are a professional report writer who excels at presenting data insights
in a structured, actionable HTML format. You focus on creating clear tables that highlight key findings
and making recommendations. Ensure that all reported values are accurate and match the actual data.`

// BuildReportPrompt combines the analysis outputs into the final report
// request.
func BuildReportPrompt(analysisOutputs []string) string {
	var b strings.Builder
	b.WriteString(`Based on the analysis below, create a comprehensive report that includes:

1. A summary of key findings
2. A detailed breakdown of workload distribution
3. Recommendations for workload optimization
4. Notable patterns or concerns

Ensure that the report presents the following information:
- Key findings that highlight the most important insights from the data
- Total hours tracked and the total number of employees
- Workload distribution metrics by employee and by project
- Prioritized recommendations with titles, descriptions, and priority levels
- Identified patterns and concerns, detailing their type, description, and impact

Structure the report clearly with HTML formatting to convey the essential information effectively.
The output must be well-organized and suitable for display in a web browser.`)

	for i, out := range analysisOutputs {
		b.WriteString(fmt.Sprintf("\n\nAnalysis output %d:\n%s", i+1, out))
	}
	return b.String()
}
