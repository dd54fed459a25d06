package salesforce

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Field and object names of the recruiting org.
const (
	ContactObject    = "Contact"
	FieldNPI         = "NPI__c"
	FieldLinkedIn    = "LinkedIn_Profile__c"
	FieldCandidate   = "Candidate__c"
	FieldJobTitle    = "Job_Title__c"
	FieldStage       = "Stage__c"
	FieldSubmittedOn = "Submitted_Date__c"
	relClient        = "Client__r"
	soqlDateTime     = "2006-01-02T15:04:05Z"
	sfDateTimeLayout = "2006-01-02T15:04:05.000-0700"
	sfDateLayout     = "2006-01-02"
	maxIDsPerQuery   = 200
)

var objectNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Contact is a candidate's Contact record.
type Contact struct {
	ID               string `json:"Id" salesforce:"Id"`
	Name             string `json:"Name" salesforce:"Name"`
	NPI              string `json:"NPI__c" salesforce:"NPI__c"`
	LinkedIn         string `json:"LinkedIn_Profile__c" salesforce:"LinkedIn_Profile__c"`
	LastModifiedDate string `json:"LastModifiedDate" salesforce:"LastModifiedDate"`
}

// ClientRef is the client Account a submission points at.
type ClientRef struct {
	Name    string `json:"Name" salesforce:"Name"`
	Website string `json:"Website" salesforce:"Website"`
}

// Submission is a candidate presented to a client.
type Submission struct {
	ID               string     `json:"Id" salesforce:"Id"`
	CandidateID      string     `json:"Candidate__c" salesforce:"Candidate__c"`
	Client           *ClientRef `json:"Client__r" salesforce:"Client__r"`
	JobTitle         string     `json:"Job_Title__c" salesforce:"Job_Title__c"`
	Stage            string     `json:"Stage__c" salesforce:"Stage__c"`
	SubmittedDate    string     `json:"Submitted_Date__c" salesforce:"Submitted_Date__c"`
	LastModifiedDate string     `json:"LastModifiedDate" salesforce:"LastModifiedDate"`
}

var contactFields = []string{"Id", "Name", FieldNPI, FieldLinkedIn, "LastModifiedDate"}

var submissionFields = []string{
	"Id", FieldCandidate, relClient + ".Name", relClient + ".Website",
	FieldJobTitle, FieldStage, FieldSubmittedOn, "LastModifiedDate",
}

// QuerySubmissions returns every record of object modified after since, or
// all records when since is zero.
func QuerySubmissions(ctx context.Context, c Client, object string, since time.Time) ([]Submission, error) {
	if !objectNameRe.MatchString(object) {
		return nil, eris.Errorf("sf: invalid object name %q", object)
	}
	soql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(submissionFields, ", "), object)
	if !since.IsZero() {
		soql += " WHERE LastModifiedDate > " + since.UTC().Format(soqlDateTime)
	}
	soql += " ORDER BY LastModifiedDate"

	var subs []Submission
	if err := c.Query(ctx, soql, &subs); err != nil {
		return nil, eris.Wrapf(err, "sf: query %s", object)
	}
	return subs, nil
}

// QueryContacts loads the contacts with the given IDs.
func QueryContacts(ctx context.Context, c Client, ids []string) ([]Contact, error) {
	var all []Contact
	for start := 0; start < len(ids); start += maxIDsPerQuery {
		end := min(start+maxIDsPerQuery, len(ids))
		quoted := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			quoted = append(quoted, "'"+escapeSoql(id)+"'")
		}
		soql := fmt.Sprintf("SELECT %s FROM %s WHERE Id IN (%s)",
			strings.Join(contactFields, ", "), ContactObject, strings.Join(quoted, ", "))

		var batch []Contact
		if err := c.Query(ctx, soql, &batch); err != nil {
			return all, eris.Wrapf(err, "sf: query contacts %d-%d", start, end)
		}
		all = append(all, batch...)
	}
	return all, nil
}

// BulkUpdate sends updates to object in Collections API sized batches.
func BulkUpdate(ctx context.Context, c Client, object string, records []CollectionRecord) ([]CollectionResult, error) {
	var all []CollectionResult
	for start := 0; start < len(records); start += maxBatchSize {
		end := min(start+maxBatchSize, len(records))
		results, err := c.UpdateCollection(ctx, object, records[start:end])
		if err != nil {
			return all, eris.Wrapf(err, "sf: bulk update %s batch %d-%d", object, start, end)
		}
		all = append(all, results...)
	}
	return all, nil
}

// ParseDate reads a Salesforce date or datetime value. Empty and malformed
// values give the zero time.
func ParseDate(s string) time.Time {
	for _, layout := range []string{sfDateTimeLayout, time.RFC3339, sfDateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// escapeSoql escapes a value for use inside a quoted SOQL literal.
func escapeSoql(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", `\'`)
}
